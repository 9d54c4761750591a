package email

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Domenick1991/cabinbooking/internal/kafka"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers confirmation emails. Delivery is a log line until a mail
// provider is wired in.
type Sender struct {
	deliver func(ctx context.Context, msg Message) error
}

func NewSender() *Sender {
	return &Sender{deliver: logDelivery}
}

func (s *Sender) Send(ctx context.Context, payload kafka.ConfirmationPayload) error {
	if payload.Email == "" {
		return fmt.Errorf("confirmation %s has no recipient", payload.BookingID)
	}
	return s.deliver(ctx, Render(payload))
}

func Render(p kafka.ConfirmationPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", p.FirstName)
	fmt.Fprintf(&b, "Your stay is booked. Confirmation code: %s\n", p.ConfirmationCode)
	fmt.Fprintf(&b, "Check-in: %s\nCheck-out: %s (%d nights)\n", p.CheckIn, p.CheckOut, p.Nights)
	fmt.Fprintf(&b, "Guests: %d adults, %d children\n", p.Adults, p.Children)
	fmt.Fprintf(&b, "Total: %.2f %s (%s)\n", p.Total, p.Currency, p.PaymentStatus)

	return Message{
		To:      p.Email,
		Subject: fmt.Sprintf("Booking confirmed: %s", p.ConfirmationCode),
		Body:    b.String(),
	}
}

func logDelivery(_ context.Context, msg Message) error {
	log.Printf("send email to %s: %s", msg.To, msg.Subject)
	return nil
}

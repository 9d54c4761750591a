package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// ConfirmationPayload is the flat message the email worker renders from.
// Amounts are decimals in the booking currency.
type ConfirmationPayload struct {
	BookingID        string  `json:"booking_id"`
	ReservationID    string  `json:"reservation_id"`
	ConfirmationCode string  `json:"confirmation_code"`
	ListingID        string  `json:"listing_id"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone"`
	CheckIn          string  `json:"check_in"`
	CheckOut         string  `json:"check_out"`
	Nights           int     `json:"nights"`
	Adults           int     `json:"adults"`
	Children         int     `json:"children"`
	Total            float64 `json:"total"`
	Currency         string  `json:"currency"`
	PaymentStatus    string  `json:"payment_status"`
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Notifier hands confirmation payloads to the notifications topic.
type Notifier struct {
	publisher Publisher
	topic     string
}

func NewNotifier(publisher Publisher, topic string) *Notifier {
	return &Notifier{publisher: publisher, topic: topic}
}

func (n *Notifier) SendConfirmation(ctx context.Context, payload ConfirmationPayload) error {
	if n.topic == "" {
		return errors.New("notifications topic is not configured")
	}
	if payload.Email == "" {
		return fmt.Errorf("confirmation %s has no recipient", payload.BookingID)
	}
	return n.publisher.Publish(ctx, n.topic, payload.BookingID, payload)
}

func DecodeConfirmation(msg kafka.Message) (ConfirmationPayload, error) {
	var payload ConfirmationPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return ConfirmationPayload{}, fmt.Errorf("decode confirmation %s: %w", string(msg.Key), err)
	}
	return payload, nil
}

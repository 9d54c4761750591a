// Package checkout drives one guest's booking session from date selection to
// confirmation. It runs on the client side of the HTTP API and keeps its state
// in a session-scoped store while a live quote is held.
package checkout

import (
	"time"

	"github.com/Domenick1991/cabinbooking/internal/domain"
)

type Step int

const (
	StepDates Step = iota + 1
	StepGuests
	StepQuote
	StepDetails
	StepPayment
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepDates:
		return "dates"
	case StepGuests:
		return "guests"
	case StepQuote:
		return "quote"
	case StepDetails:
		return "details"
	case StepPayment:
		return "payment"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

func clampStep(s Step) Step {
	if s < StepDates {
		return StepDates
	}
	if s > StepConfirmation {
		return StepConfirmation
	}
	return s
}

// Reservation is what the guest sees after a successful payment.
type Reservation struct {
	BookingID        string         `json:"booking_id"`
	ReservationID    string         `json:"reservation_id"`
	ConfirmationCode string         `json:"confirmation_code"`
	Status           string         `json:"status"`
	PaymentStatus    string         `json:"payment_status"`
	Pricing          domain.Pricing `json:"pricing"`
}

// State is the whole checkout session. Loading and Error are transient and
// never persisted.
type State struct {
	ListingID      string               `json:"listing_id"`
	Capacity       int                  `json:"capacity"`
	CheckIn        time.Time            `json:"check_in"`
	CheckOut       time.Time            `json:"check_out"`
	Guests         domain.Guests        `json:"guests"`
	Availability   *domain.Availability `json:"availability,omitempty"`
	Quote          *domain.Quote        `json:"quote,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	Details        domain.GuestDetails  `json:"details"`
	Reservation    *Reservation         `json:"reservation,omitempty"`
	Step           Step                 `json:"step"`

	Loading bool   `json:"-"`
	Error   string `json:"-"`
}

func (s State) Nights() int {
	if s.CheckIn.IsZero() || s.CheckOut.IsZero() {
		return 0
	}
	return domain.Nights(s.CheckIn, s.CheckOut)
}

func (s State) clone() State {
	out := s
	if s.Availability != nil {
		a := *s.Availability
		a.BlockedDates = append([]time.Time(nil), s.Availability.BlockedDates...)
		out.Availability = &a
	}
	if s.Quote != nil {
		q := *s.Quote
		out.Quote = &q
	}
	if s.Reservation != nil {
		r := *s.Reservation
		out.Reservation = &r
	}
	return out
}

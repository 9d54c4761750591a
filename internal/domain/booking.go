package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type Guests struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

func (g Guests) Total() int {
	return g.Adults + g.Children
}

type GuestDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Booking is one checkout attempt. It is written before the upstream call and
// never deleted, whatever the upstream outcome.
type Booking struct {
	ID                    string
	IdempotencyKey        string
	UpstreamReservationID string
	ConfirmationCode      string
	ListingID             string
	QuoteID               string
	CheckIn               time.Time
	CheckOut              time.Time
	Nights                int
	Guests                Guests
	Guest                 GuestDetails
	Pricing               Pricing
	PaymentMethodToken    string
	PaymentStatus         PaymentStatus
	Status                BookingStatus
	ErrorReason           string
	IPAddress             string
	UserAgent             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ConfirmedAt           *time.Time
}

// Confirmation is what the upstream reported for a successful reservation.
type Confirmation struct {
	UpstreamReservationID string
	ConfirmationCode      string
	Status                BookingStatus
	PaymentStatus         PaymentStatus
	Pricing               Pricing
}

type Listing struct {
	ID        string
	Name      string
	MaxGuests int
	CreatedAt time.Time
	UpdatedAt time.Time
}

package checkout

import (
	"context"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/domain"
)

type SearchRequest struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int
}

type QuoteRequest struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    domain.Guests
}

type ReserveRequest struct {
	IdempotencyKey     string
	ListingID          string
	QuoteID            string
	CheckIn            time.Time
	CheckOut           time.Time
	Guests             domain.Guests
	Guest              domain.GuestDetails
	Pricing            domain.Pricing
	PaymentMethodToken string
}

// Backend is the booking HTTP API as seen by the checkout.
type Backend interface {
	Search(ctx context.Context, req SearchRequest) (domain.Availability, error)
	Quote(ctx context.Context, req QuoteRequest) (domain.Quote, error)
	Reserve(ctx context.Context, req ReserveRequest) (Reservation, error)
}

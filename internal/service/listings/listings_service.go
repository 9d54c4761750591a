package listings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/Domenick1991/cabinbooking/internal/repository"
	"github.com/Domenick1991/cabinbooking/internal/upstream"
)

type ListingUseCase interface {
	List(ctx context.Context) ([]domain.Listing, error)
	Search(ctx context.Context, input SearchInput) (*domain.Availability, error)
	Quote(ctx context.Context, input QuoteInput) (*domain.Quote, error)
}

type Upstream interface {
	Search(ctx context.Context, in upstream.SearchInput) (domain.Availability, error)
	Quote(ctx context.Context, in upstream.QuoteInput) (domain.Quote, error)
}

type AvailabilityCache interface {
	GetAvailability(ctx context.Context, key string) (*domain.Availability, error)
	SetAvailability(ctx context.Context, key string, a domain.Availability) error
}

type SearchInput struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int
}

type QuoteInput struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    domain.Guests
}

type Service struct {
	listings repository.ListingRepository
	upstream Upstream
	cache    AvailabilityCache
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the listing lookups. cache may be nil.
func NewService(listings repository.ListingRepository, api Upstream, cache AvailabilityCache, opts ...Option) *Service {
	s := &Service{listings: listings, upstream: api, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context) ([]domain.Listing, error) {
	listings, err := s.listings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list listings: %v", apperr.ErrSystemUnavailable, err)
	}
	return listings, nil
}

// Search returns availability for the stay, served from the short-lived cache
// when possible. Cache errors only cost a round trip to the vendor.
func (s *Service) Search(ctx context.Context, input SearchInput) (*domain.Availability, error) {
	if err := s.validateStay(input.ListingID, input.CheckIn, input.CheckOut); err != nil {
		return nil, err
	}
	if input.Guests < 0 {
		return nil, fmt.Errorf("%w: guests must not be negative", apperr.ErrValidation)
	}

	key := availabilityKey(input)
	if s.cache != nil {
		if cached, err := s.cache.GetAvailability(ctx, key); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			log.Printf("WARNING: availability cache read %s: %v", key, err)
		}
	}

	availability, err := s.upstream.Search(ctx, upstream.SearchInput{
		ListingID: input.ListingID,
		CheckIn:   input.CheckIn,
		CheckOut:  input.CheckOut,
		Guests:    input.Guests,
	})
	if err != nil {
		return nil, upstreamError("search", err)
	}

	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, key, availability); err != nil {
			log.Printf("WARNING: availability cache write %s: %v", key, err)
		}
	}
	return &availability, nil
}

// Quote prices the stay with the vendor after checking the party fits the listing.
func (s *Service) Quote(ctx context.Context, input QuoteInput) (*domain.Quote, error) {
	if err := s.validateStay(input.ListingID, input.CheckIn, input.CheckOut); err != nil {
		return nil, err
	}
	if input.Guests.Adults < 1 {
		return nil, fmt.Errorf("%w: at least one adult is required", apperr.ErrValidation)
	}
	if input.Guests.Children < 0 {
		return nil, fmt.Errorf("%w: children must not be negative", apperr.ErrValidation)
	}

	if s.listings != nil {
		listing, err := s.listings.GetByID(ctx, input.ListingID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: listing %s", apperr.ErrNotFound, input.ListingID)
		case err != nil:
			return nil, fmt.Errorf("%w: load listing %s: %v", apperr.ErrSystemUnavailable, input.ListingID, err)
		case listing.MaxGuests > 0 && input.Guests.Total() > listing.MaxGuests:
			return nil, fmt.Errorf("%w: listing %s sleeps at most %d guests", apperr.ErrValidation, input.ListingID, listing.MaxGuests)
		}
	}

	quote, err := s.upstream.Quote(ctx, upstream.QuoteInput{
		ListingID: input.ListingID,
		CheckIn:   input.CheckIn,
		CheckOut:  input.CheckOut,
		Guests:    input.Guests,
	})
	if err != nil {
		return nil, upstreamError("quote", err)
	}
	return &quote, nil
}

func (s *Service) validateStay(listingID string, checkIn, checkOut time.Time) error {
	if listingID == "" {
		return fmt.Errorf("%w: listing id is required", apperr.ErrValidation)
	}
	if checkIn.IsZero() || checkOut.IsZero() {
		return fmt.Errorf("%w: check-in and check-out dates are required", apperr.ErrValidation)
	}
	if !checkOut.After(checkIn) {
		return fmt.Errorf("%w: check-out must be after check-in", apperr.ErrValidation)
	}
	if domain.TruncateDay(checkIn).Before(domain.TruncateDay(s.now())) {
		return fmt.Errorf("%w: check-in is in the past", apperr.ErrValidation)
	}
	return nil
}

// upstreamError maps a vendor failure on a read path to a user-facing
// category. The vendor text is logged here and never returned.
func upstreamError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Printf("upstream %s failed: %v", op, err)

	if ue, ok := upstream.AsError(err); ok {
		switch ue.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: upstream %s", apperr.ErrNotFound, op)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: the requested stay was rejected", apperr.ErrValidation)
		case http.StatusConflict:
			return fmt.Errorf("%w: upstream %s", apperr.ErrDatesUnavailable, op)
		}
	}
	return fmt.Errorf("%w: upstream %s", apperr.ErrServiceUnavailable, op)
}

func availabilityKey(input SearchInput) string {
	return input.ListingID + ":" + input.CheckIn.Format(domain.DateLayout) + ":" + input.CheckOut.Format(domain.DateLayout) + ":" + strconv.Itoa(input.Guests)
}

var _ ListingUseCase = (*Service)(nil)

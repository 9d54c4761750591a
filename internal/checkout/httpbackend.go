package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/Domenick1991/cabinbooking/internal/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

// APIError is an error response of the booking API.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("booking api: %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return apperr.FromKind(e.Kind)
}

type pricingJSON struct {
	Base     float64 `json:"base"`
	Cleaning float64 `json:"cleaning_fee"`
	Taxes    float64 `json:"taxes"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

func (p pricingJSON) toDomain() domain.Pricing {
	return domain.Pricing{
		BaseCents:     domain.ToMinorUnits(p.Base),
		CleaningCents: domain.ToMinorUnits(p.Cleaning),
		TaxCents:      domain.ToMinorUnits(p.Taxes),
		TotalCents:    domain.ToMinorUnits(p.Total),
		Currency:      p.Currency,
	}
}

func pricingFromDomain(p domain.Pricing) pricingJSON {
	return pricingJSON{
		Base:     domain.FromMinorUnits(p.BaseCents),
		Cleaning: domain.FromMinorUnits(p.CleaningCents),
		Taxes:    domain.FromMinorUnits(p.TaxCents),
		Total:    domain.FromMinorUnits(p.TotalCents),
		Currency: p.Currency,
	}
}

type availabilityJSON struct {
	Available    bool     `json:"available"`
	BlockedDates []string `json:"blocked_dates"`
	MinimumStay  int      `json:"minimum_stay"`
	MaximumStay  int      `json:"maximum_stay"`
}

type quoteJSON struct {
	QuoteID   string          `json:"quote_id"`
	ListingID string          `json:"listing_id"`
	CheckIn   string          `json:"check_in"`
	CheckOut  string          `json:"check_out"`
	Adults    int             `json:"adults"`
	Children  int             `json:"children"`
	ExpiresAt time.Time       `json:"expires_at"`
	Pricing   pricingJSON     `json:"pricing"`
	RatePlan  domain.RatePlan `json:"rate_plan"`
	Terms     domain.Terms    `json:"terms"`
}

type reserveJSON struct {
	IdempotencyKey     string              `json:"idempotency_key"`
	ListingID          string              `json:"listing_id"`
	QuoteID            string              `json:"quote_id"`
	CheckIn            string              `json:"check_in"`
	CheckOut           string              `json:"check_out"`
	Adults             int                 `json:"adults"`
	Children           int                 `json:"children"`
	Guest              domain.GuestDetails `json:"guest"`
	PaymentMethodToken string              `json:"payment_method_token"`
	Pricing            pricingJSON         `json:"pricing"`
}

type reservationJSON struct {
	BookingID        string      `json:"booking_id"`
	ReservationID    string      `json:"reservation_id"`
	ConfirmationCode string      `json:"confirmation_code"`
	Status           string      `json:"status"`
	PaymentStatus    string      `json:"payment_status"`
	Pricing          pricingJSON `json:"pricing"`
}

type errorJSON struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPBackend talks to the booking API over HTTP.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *HTTPBackend) Search(ctx context.Context, req SearchRequest) (domain.Availability, error) {
	q := url.Values{}
	q.Set("check_in", req.CheckIn.Format(domain.DateLayout))
	q.Set("check_out", req.CheckOut.Format(domain.DateLayout))
	if req.Guests > 0 {
		q.Set("guests", strconv.Itoa(req.Guests))
	}

	var resp availabilityJSON
	path := "/api/listings/" + url.PathEscape(req.ListingID) + "/availability?" + q.Encode()
	if err := b.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return domain.Availability{}, err
	}

	out := domain.Availability{Available: resp.Available, MinimumStay: resp.MinimumStay, MaximumStay: resp.MaximumStay}
	for _, s := range resp.BlockedDates {
		d, err := domain.ParseDate(s)
		if err != nil {
			return domain.Availability{}, fmt.Errorf("booking api: blocked date %q: %w", s, err)
		}
		out.BlockedDates = append(out.BlockedDates, d)
	}
	return out, nil
}

func (b *HTTPBackend) Quote(ctx context.Context, req QuoteRequest) (domain.Quote, error) {
	body := map[string]interface{}{
		"check_in":  req.CheckIn.Format(domain.DateLayout),
		"check_out": req.CheckOut.Format(domain.DateLayout),
		"adults":    req.Guests.Adults,
		"children":  req.Guests.Children,
	}

	var resp quoteJSON
	if err := b.do(ctx, http.MethodPost, "/api/listings/"+url.PathEscape(req.ListingID)+"/quotes", body, "", &resp); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		QuoteID:   resp.QuoteID,
		ListingID: req.ListingID,
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Guests:    req.Guests,
		ExpiresAt: resp.ExpiresAt,
		Pricing:   resp.Pricing.toDomain(),
		RatePlan:  resp.RatePlan,
		Terms:     resp.Terms,
	}, nil
}

func (b *HTTPBackend) Reserve(ctx context.Context, req ReserveRequest) (Reservation, error) {
	body := reserveJSON{
		IdempotencyKey:     req.IdempotencyKey,
		ListingID:          req.ListingID,
		QuoteID:            req.QuoteID,
		CheckIn:            req.CheckIn.Format(domain.DateLayout),
		CheckOut:           req.CheckOut.Format(domain.DateLayout),
		Adults:             req.Guests.Adults,
		Children:           req.Guests.Children,
		Guest:              req.Guest,
		PaymentMethodToken: req.PaymentMethodToken,
		Pricing:            pricingFromDomain(req.Pricing),
	}

	var resp reservationJSON
	if err := b.do(ctx, http.MethodPost, "/api/reservations", body, req.IdempotencyKey, &resp); err != nil {
		return Reservation{}, err
	}
	return Reservation{
		BookingID:        resp.BookingID,
		ReservationID:    resp.ReservationID,
		ConfirmationCode: resp.ConfirmationCode,
		Status:           resp.Status,
		PaymentStatus:    resp.PaymentStatus,
		Pricing:          resp.Pricing.toDomain(),
	}, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body interface{}, idempotencyKey string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrServiceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorJSON
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = apperr.Kind(apperr.ErrServiceUnavailable)
		}
		return &APIError{StatusCode: resp.StatusCode, Kind: e.Error, Message: e.Message}
	}
	return json.Unmarshal(data, out)
}

var _ Backend = (*HTTPBackend)(nil)

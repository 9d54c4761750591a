package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/domain"
)

// The vendor's wire format is an external contract. The shapes below are
// the fields this service reads and writes; everything else is ignored.

type wireGuests struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

type wirePricing struct {
	Base     float64 `json:"base"`
	Cleaning float64 `json:"cleaning_fee"`
	Taxes    float64 `json:"taxes"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

func (p *wirePricing) toDomain() *domain.Pricing {
	if p == nil {
		return nil
	}
	return &domain.Pricing{
		BaseCents:     domain.ToMinorUnits(p.Base),
		CleaningCents: domain.ToMinorUnits(p.Cleaning),
		TaxCents:      domain.ToMinorUnits(p.Taxes),
		TotalCents:    domain.ToMinorUnits(p.Total),
		Currency:      p.Currency,
	}
}

type wireGuest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type searchResponse struct {
	Available    bool     `json:"available"`
	BlockedDates []string `json:"blocked_dates"`
	MinStay      int      `json:"min_stay"`
	MaxStay      int      `json:"max_stay"`
}

type quoteRequest struct {
	ListingID string     `json:"listing_id"`
	CheckIn   string     `json:"check_in"`
	CheckOut  string     `json:"check_out"`
	Guests    wireGuests `json:"guests"`
}

type quoteResponse struct {
	QuoteID   string      `json:"quote_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	Rates     wirePricing `json:"rates"`
	RatePlan  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"rate_plan"`
	Terms struct {
		CancellationPolicy string `json:"cancellation_policy"`
		CheckInTime        string `json:"check_in_time"`
		CheckOutTime       string `json:"check_out_time"`
	} `json:"terms"`
}

type reservationRequest struct {
	QuoteID   string    `json:"quote_id"`
	Reference string    `json:"reference"`
	Guest     wireGuest `json:"guest"`
	Payment   struct {
		Token string `json:"token"`
	} `json:"payment"`
}

type reservationResponse struct {
	ReservationID    string       `json:"reservation_id"`
	ConfirmationCode string       `json:"confirmation_code"`
	Status           string       `json:"status"`
	PaymentStatus    string       `json:"payment_status"`
	ListingID        string       `json:"listing_id"`
	CheckIn          string       `json:"check_in"`
	CheckOut         string       `json:"check_out"`
	Pricing          *wirePricing `json:"pricing"`
	Guest            *wireGuest   `json:"guest"`
}

// Caller is satisfied by *Client.
type Caller interface {
	Call(ctx context.Context, req Request, out interface{}) error
}

type API struct {
	client Caller
}

func NewAPI(client Caller) *API {
	return &API{client: client}
}

type SearchInput struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int
}

func (a *API) Search(ctx context.Context, in SearchInput) (domain.Availability, error) {
	q := url.Values{}
	q.Set("check_in", in.CheckIn.Format(domain.DateLayout))
	q.Set("check_out", in.CheckOut.Format(domain.DateLayout))
	if in.Guests > 0 {
		q.Set("guests", strconv.Itoa(in.Guests))
	}

	var resp searchResponse
	if err := a.client.Call(ctx, Request{
		Endpoint: "search",
		Method:   http.MethodGet,
		Path:     "/listings/" + url.PathEscape(in.ListingID) + "/availability",
		Query:    q,
	}, &resp); err != nil {
		return domain.Availability{}, err
	}

	out := domain.Availability{
		Available:   resp.Available,
		MinimumStay: resp.MinStay,
		MaximumStay: resp.MaxStay,
	}
	for _, s := range resp.BlockedDates {
		d, err := domain.ParseDate(s)
		if err != nil {
			return domain.Availability{}, fmt.Errorf("upstream search: blocked date %q: %w", s, err)
		}
		out.BlockedDates = append(out.BlockedDates, d)
	}
	return out, nil
}

type QuoteInput struct {
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    domain.Guests
}

func (a *API) Quote(ctx context.Context, in QuoteInput) (domain.Quote, error) {
	var resp quoteResponse
	if err := a.client.Call(ctx, Request{
		Endpoint: "quote",
		Method:   http.MethodPost,
		Path:     "/quotes",
		Body: quoteRequest{
			ListingID: in.ListingID,
			CheckIn:   in.CheckIn.Format(domain.DateLayout),
			CheckOut:  in.CheckOut.Format(domain.DateLayout),
			Guests:    wireGuests{Adults: in.Guests.Adults, Children: in.Guests.Children},
		},
	}, &resp); err != nil {
		return domain.Quote{}, err
	}
	if resp.QuoteID == "" {
		return domain.Quote{}, fmt.Errorf("upstream quote: response without quote_id")
	}

	return domain.Quote{
		QuoteID:   resp.QuoteID,
		ListingID: in.ListingID,
		CheckIn:   in.CheckIn,
		CheckOut:  in.CheckOut,
		Guests:    in.Guests,
		ExpiresAt: resp.ExpiresAt,
		Pricing:   *resp.Rates.toDomain(),
		RatePlan:  domain.RatePlan{ID: resp.RatePlan.ID, Name: resp.RatePlan.Name},
		Terms: domain.Terms{
			CancellationPolicy: resp.Terms.CancellationPolicy,
			CheckInTime:        resp.Terms.CheckInTime,
			CheckOutTime:       resp.Terms.CheckOutTime,
		},
	}, nil
}

type ReservationInput struct {
	QuoteID            string
	Reference          string
	Guest              domain.GuestDetails
	PaymentMethodToken string
	IdempotencyKey     string
}

// Reservation is the upstream view of a created reservation. Fields the vendor
// left out are zero / nil.
type Reservation struct {
	ReservationID    string
	ConfirmationCode string
	Status           string
	PaymentStatus    string
	ListingID        string
	CheckIn          time.Time
	CheckOut         time.Time
	Pricing          *domain.Pricing
	Guest            *domain.GuestDetails
}

// CreateReservation confirms the quote and charges the payment method. The
// idempotency key makes wrapper retries safe against a double charge.
func (a *API) CreateReservation(ctx context.Context, in ReservationInput) (Reservation, error) {
	body := reservationRequest{
		QuoteID:   in.QuoteID,
		Reference: in.Reference,
		Guest: wireGuest{
			FirstName: in.Guest.FirstName,
			LastName:  in.Guest.LastName,
			Email:     in.Guest.Email,
			Phone:     in.Guest.Phone,
		},
	}
	body.Payment.Token = in.PaymentMethodToken

	var resp reservationResponse
	if err := a.client.Call(ctx, Request{
		Endpoint:       "reserve",
		Method:         http.MethodPost,
		Path:           "/reservations",
		Body:           body,
		IdempotencyKey: in.IdempotencyKey,
	}, &resp); err != nil {
		return Reservation{}, err
	}

	out := Reservation{
		ReservationID:    resp.ReservationID,
		ConfirmationCode: resp.ConfirmationCode,
		Status:           resp.Status,
		PaymentStatus:    resp.PaymentStatus,
		ListingID:        resp.ListingID,
		Pricing:          resp.Pricing.toDomain(),
	}
	if d, err := domain.ParseDate(resp.CheckIn); err == nil {
		out.CheckIn = d
	}
	if d, err := domain.ParseDate(resp.CheckOut); err == nil {
		out.CheckOut = d
	}
	if resp.Guest != nil {
		out.Guest = &domain.GuestDetails{
			FirstName: resp.Guest.FirstName,
			LastName:  resp.Guest.LastName,
			Email:     resp.Guest.Email,
			Phone:     resp.Guest.Phone,
		}
	}
	return out, nil
}

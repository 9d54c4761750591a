package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/Domenick1991/cabinbooking/internal/service/listings"
	"github.com/gin-gonic/gin"
)

type ListingHandler struct {
	service listings.ListingUseCase
}

type listingResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MaxGuests int    `json:"max_guests"`
}

type availabilityResponse struct {
	Available    bool     `json:"available"`
	BlockedDates []string `json:"blocked_dates"`
	MinimumStay  int      `json:"minimum_stay"`
	MaximumStay  int      `json:"maximum_stay"`
}

type quoteRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Adults   int    `json:"adults"`
	Children int    `json:"children"`
}

type quoteResponse struct {
	QuoteID   string          `json:"quote_id"`
	ListingID string          `json:"listing_id"`
	CheckIn   string          `json:"check_in"`
	CheckOut  string          `json:"check_out"`
	Adults    int             `json:"adults"`
	Children  int             `json:"children"`
	ExpiresAt string          `json:"expires_at"`
	Pricing   pricingPayload  `json:"pricing"`
	RatePlan  domain.RatePlan `json:"rate_plan"`
	Terms     domain.Terms    `json:"terms"`
}

type pricingPayload struct {
	Base     float64 `json:"base"`
	Cleaning float64 `json:"cleaning_fee"`
	Taxes    float64 `json:"taxes"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

func newPricingPayload(p domain.Pricing) pricingPayload {
	return pricingPayload{
		Base:     domain.FromMinorUnits(p.BaseCents),
		Cleaning: domain.FromMinorUnits(p.CleaningCents),
		Taxes:    domain.FromMinorUnits(p.TaxCents),
		Total:    domain.FromMinorUnits(p.TotalCents),
		Currency: p.Currency,
	}
}

func (p pricingPayload) toDomain() domain.Pricing {
	return domain.Pricing{
		BaseCents:     domain.ToMinorUnits(p.Base),
		CleaningCents: domain.ToMinorUnits(p.Cleaning),
		TaxCents:      domain.ToMinorUnits(p.Taxes),
		TotalCents:    domain.ToMinorUnits(p.Total),
		Currency:      p.Currency,
	}
}

func NewListingHandler(service listings.ListingUseCase) *ListingHandler {
	return &ListingHandler{service: service}
}

func (h *ListingHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id/availability", h.availability)
	router.POST("/:id/quotes", h.quote)
}

func (h *ListingHandler) list(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]listingResponse, 0, len(items))
	for _, l := range items {
		resp = append(resp, listingResponse{ID: l.ID, Name: l.Name, MaxGuests: l.MaxGuests})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ListingHandler) availability(c *gin.Context) {
	checkIn, checkOut, err := parseStay(c.Query("check_in"), c.Query("check_out"))
	if err != nil {
		writeError(c, err)
		return
	}
	guests := 0
	if v := c.Query("guests"); v != "" {
		if guests, err = strconv.Atoi(v); err != nil {
			writeError(c, fmt.Errorf("%w: guests must be a number", apperr.ErrValidation))
			return
		}
	}

	a, err := h.service.Search(c.Request.Context(), listings.SearchInput{
		ListingID: c.Param("id"),
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Guests:    guests,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := availabilityResponse{
		Available:    a.Available,
		BlockedDates: make([]string, 0, len(a.BlockedDates)),
		MinimumStay:  a.MinimumStay,
		MaximumStay:  a.MaximumStay,
	}
	for _, d := range a.BlockedDates {
		resp.BlockedDates = append(resp.BlockedDates, d.Format(domain.DateLayout))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ListingHandler) quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", apperr.ErrValidation))
		return
	}
	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		writeError(c, err)
		return
	}

	q, err := h.service.Quote(c.Request.Context(), listings.QuoteInput{
		ListingID: c.Param("id"),
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Guests:    domain.Guests{Adults: req.Adults, Children: req.Children},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, quoteResponse{
		QuoteID:   q.QuoteID,
		ListingID: q.ListingID,
		CheckIn:   q.CheckIn.Format(domain.DateLayout),
		CheckOut:  q.CheckOut.Format(domain.DateLayout),
		Adults:    q.Guests.Adults,
		Children:  q.Guests.Children,
		ExpiresAt: q.ExpiresAt.UTC().Format(time.RFC3339),
		Pricing:   newPricingPayload(q.Pricing),
		RatePlan:  q.RatePlan,
		Terms:     q.Terms,
	})
}

func parseStay(in, out string) (time.Time, time.Time, error) {
	checkIn, err := domain.ParseDate(in)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: check_in must be YYYY-MM-DD", apperr.ErrValidation)
	}
	checkOut, err := domain.ParseDate(out)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: check_out must be YYYY-MM-DD", apperr.ErrValidation)
	}
	return checkIn, checkOut, nil
}

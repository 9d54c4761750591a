package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/Domenick1991/cabinbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

const headerIdempotencyKey = "Idempotency-Key"

type ReservationHandler struct {
	service reservation.ReservationUseCase
}

type guestPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type createReservationRequest struct {
	IdempotencyKey     string         `json:"idempotency_key"`
	ListingID          string         `json:"listing_id"`
	QuoteID            string         `json:"quote_id"`
	CheckIn            string         `json:"check_in"`
	CheckOut           string         `json:"check_out"`
	Adults             int            `json:"adults"`
	Children           int            `json:"children"`
	Guest              guestPayload   `json:"guest"`
	PaymentMethodToken string         `json:"payment_method_token"`
	Pricing            pricingPayload `json:"pricing"`
}

type reservationResponse struct {
	BookingID        string         `json:"booking_id"`
	IdempotencyKey   string         `json:"idempotency_key"`
	ReservationID    string         `json:"reservation_id"`
	ConfirmationCode string         `json:"confirmation_code"`
	Status           string         `json:"status"`
	PaymentStatus    string         `json:"payment_status"`
	ListingID        string         `json:"listing_id"`
	CheckIn          string         `json:"check_in"`
	CheckOut         string         `json:"check_out"`
	Nights           int            `json:"nights"`
	Adults           int            `json:"adults"`
	Children         int            `json:"children"`
	Guest            guestPayload   `json:"guest"`
	Pricing          pricingPayload `json:"pricing"`
	Replayed         bool           `json:"replayed"`
}

func NewReservationHandler(service reservation.ReservationUseCase) *ReservationHandler {
	return &ReservationHandler{service: service}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", apperr.ErrValidation))
		return
	}
	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		writeError(c, err)
		return
	}

	key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	result, err := h.service.ConfirmReservation(c.Request.Context(), reservation.ConfirmInput{
		IdempotencyKey: key,
		ListingID:      req.ListingID,
		QuoteID:        req.QuoteID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Guests:         domain.Guests{Adults: req.Adults, Children: req.Children},
		Guest: domain.GuestDetails{
			FirstName: strings.TrimSpace(req.Guest.FirstName),
			LastName:  strings.TrimSpace(req.Guest.LastName),
			Email:     strings.TrimSpace(req.Guest.Email),
			Phone:     strings.TrimSpace(req.Guest.Phone),
		},
		Pricing:            req.Pricing.toDomain(),
		PaymentMethodToken: req.PaymentMethodToken,
		IPAddress:          c.ClientIP(),
		UserAgent:          c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, newReservationResponse(result))
}

func (h *ReservationHandler) get(c *gin.Context) {
	result, err := h.service.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newReservationResponse(result))
}

func newReservationResponse(r *reservation.Result) reservationResponse {
	return reservationResponse{
		BookingID:        r.BookingID,
		IdempotencyKey:   r.IdempotencyKey,
		ReservationID:    r.ReservationID,
		ConfirmationCode: r.ConfirmationCode,
		Status:           string(r.Status),
		PaymentStatus:    string(r.PaymentStatus),
		ListingID:        r.ListingID,
		CheckIn:          r.CheckIn.Format(domain.DateLayout),
		CheckOut:         r.CheckOut.Format(domain.DateLayout),
		Nights:           r.Nights,
		Adults:           r.Guests.Adults,
		Children:         r.Guests.Children,
		Guest: guestPayload{
			FirstName: r.Guest.FirstName,
			LastName:  r.Guest.LastName,
			Email:     r.Guest.Email,
			Phone:     r.Guest.Phone,
		},
		Pricing:  newPricingPayload(r.Pricing),
		Replayed: r.Replayed,
	}
}

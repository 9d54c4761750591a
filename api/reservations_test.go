package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/cabinbooking/internal/apperr"
	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/Domenick1991/cabinbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockReservationUseCase is a mock implementation of reservation.ReservationUseCase
type MockReservationUseCase struct {
	mock.Mock
}

func (m *MockReservationUseCase) ConfirmReservation(ctx context.Context, input reservation.ConfirmInput) (*reservation.Result, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Result), args.Error(1)
}

func (m *MockReservationUseCase) GetReservation(ctx context.Context, id string) (*reservation.Result, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Result), args.Error(1)
}

func reservationBody(key string) []byte {
	body, _ := json.Marshal(createReservationRequest{
		IdempotencyKey:     key,
		ListingID:          "cabin-1",
		QuoteID:            "q-1",
		CheckIn:            "2026-07-10",
		CheckOut:           "2026-07-13",
		Adults:             2,
		Children:           1,
		Guest:              guestPayload{FirstName: " Ada ", LastName: "Lovelace", Email: "ada@example.com", Phone: "+1 555 010 9999"},
		PaymentMethodToken: "pm_tok_1",
		Pricing:            pricingPayload{Base: 600, Cleaning: 85.5, Taxes: 68.55, Total: 754.05, Currency: "USD"},
	})
	return body
}

func confirmedResult(replayed bool) *reservation.Result {
	return &reservation.Result{
		BookingID:        "booking-1",
		IdempotencyKey:   "attempt-1",
		ReservationID:    "r-1",
		ConfirmationCode: "CONF1",
		Status:           domain.BookingStatusConfirmed,
		PaymentStatus:    domain.PaymentStatusPaid,
		ListingID:        "cabin-1",
		CheckIn:          stayIn,
		CheckOut:         stayOut,
		Nights:           3,
		Guests:           domain.Guests{Adults: 2, Children: 1},
		Guest:            domain.GuestDetails{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		Pricing:          domain.Pricing{TotalCents: 75405, Currency: "USD"},
		Replayed:         replayed,
	}
}

func TestReservationHandler_create(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader(reservationBody("attempt-1")))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("User-Agent", "test-agent")

	mockService.On("ConfirmReservation", mock.Anything, mock.MatchedBy(func(in reservation.ConfirmInput) bool {
		return in.IdempotencyKey == "attempt-1" &&
			in.ListingID == "cabin-1" &&
			in.CheckIn.Equal(stayIn) &&
			in.CheckOut.Equal(stayOut) &&
			in.Guest.FirstName == "Ada" &&
			in.Guests.Adults == 2 &&
			in.Pricing.TotalCents == 75405 &&
			in.Pricing.CleaningCents == 8550 &&
			in.UserAgent == "test-agent"
	})).Return(confirmedResult(false), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response reservationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "CONF1", response.ConfirmationCode)
	assert.Equal(t, "confirmed", response.Status)
	assert.Equal(t, "paid", response.PaymentStatus)
	assert.Equal(t, "2026-07-10", response.CheckIn)
	assert.InDelta(t, 754.05, response.Pricing.Total, 0.001)
	assert.False(t, response.Replayed)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_createHeaderKeyWins(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader(reservationBody("from-body")))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("Idempotency-Key", "from-header")

	mockService.On("ConfirmReservation", mock.Anything, mock.MatchedBy(func(in reservation.ConfirmInput) bool {
		return in.IdempotencyKey == "from-header"
	})).Return(confirmedResult(true), nil)

	handler.create(c)

	assert.Equal(t, http.StatusOK, w.Code, "a replay is not a new resource")
	var response reservationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Replayed)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_createErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{name: "quote expired", err: fmt.Errorf("%w: upstream 410", apperr.ErrQuoteExpired), wantStatus: http.StatusGone, wantKind: "quote_expired"},
		{name: "payment declined", err: fmt.Errorf("%w: upstream 402", apperr.ErrPaymentDeclined), wantStatus: http.StatusPaymentRequired, wantKind: "payment_declined"},
		{name: "dates unavailable", err: fmt.Errorf("%w: upstream 409", apperr.ErrDatesUnavailable), wantStatus: http.StatusConflict, wantKind: "dates_unavailable"},
		{name: "in progress", err: fmt.Errorf("%w: booking-1", apperr.ErrReservationInProgress), wantStatus: http.StatusConflict, wantKind: "in_progress"},
		{name: "store down", err: fmt.Errorf("%w: record attempt", apperr.ErrSystemUnavailable), wantStatus: http.StatusServiceUnavailable, wantKind: "system_unavailable"},
		{name: "vendor down", err: fmt.Errorf("%w: upstream 500", apperr.ErrServiceUnavailable), wantStatus: http.StatusServiceUnavailable, wantKind: "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockReservationUseCase{}
			handler := NewReservationHandler(mockService)

			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader(reservationBody("attempt-1")))
			c.Request.Header.Set("Content-Type", "application/json")

			mockService.On("ConfirmReservation", mock.Anything, mock.Anything).Return(nil, tt.err)

			handler.create(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			var response errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantKind, response.Error)
			assert.Equal(t, apperr.Message(tt.err), response.Message)
			assert.NotContains(t, w.Body.String(), "upstream")
		})
	}
}

func TestReservationHandler_createBadDates(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(createReservationRequest{ListingID: "cabin-1", CheckIn: "tomorrow", CheckOut: "2026-07-13"})
	c.Request = httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "ConfirmReservation", mock.Anything, mock.Anything)
}

func TestReservationHandler_get(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/reservations/booking-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}

	mockService.On("GetReservation", mock.Anything, "booking-1").Return(confirmedResult(false), nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response reservationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "booking-1", response.BookingID)
	assert.Equal(t, 3, response.Nights)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_getNotFound(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/reservations/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	mockService.On("GetReservation", mock.Anything, "missing").Return(nil, apperr.ErrNotFound)

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{name: "nil", err: nil, kind: "", status: http.StatusOK},
		{name: "validation", err: fmt.Errorf("%w: adults must be at least 1", ErrValidation), kind: "validation", status: http.StatusBadRequest},
		{name: "quote_expired", err: fmt.Errorf("reserve: %w", ErrQuoteExpired), kind: "quote_expired", status: http.StatusGone},
		{name: "declined", err: ErrPaymentDeclined, kind: "payment_declined", status: http.StatusPaymentRequired},
		{name: "dates", err: ErrDatesUnavailable, kind: "dates_unavailable", status: http.StatusConflict},
		{name: "in_progress", err: ErrReservationInProgress, kind: "in_progress", status: http.StatusConflict},
		{name: "system", err: ErrSystemUnavailable, kind: "system_unavailable", status: http.StatusServiceUnavailable},
		{name: "service", err: ErrServiceUnavailable, kind: "service_unavailable", status: http.StatusServiceUnavailable},
		{name: "timeout", err: context.DeadlineExceeded, kind: "timeout", status: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("boom"), kind: "internal", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.kind, Kind(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestMessage_HidesUnderlyingText(t *testing.T) {
	t.Parallel()

	raw := errors.New(`{"error":"card_declined","detail":"stripe: insufficient_funds"}`)
	err := fmt.Errorf("%w: %v", ErrPaymentDeclined, raw)

	msg := Message(err)
	assert.NotContains(t, msg, "stripe")
	assert.Contains(t, msg, "declined")

	assert.NotContains(t, Message(raw), "stripe")
	assert.Equal(t, "", Message(nil))
}

func TestFromKind(t *testing.T) {
	for _, sentinel := range []error{
		ErrValidation,
		ErrNotFound,
		ErrSystemUnavailable,
		ErrQuoteExpired,
		ErrPaymentDeclined,
		ErrDatesUnavailable,
		ErrReservationInProgress,
		ErrServiceUnavailable,
	} {
		assert.Equal(t, sentinel, FromKind(Kind(sentinel)))
	}
	assert.Equal(t, ErrServiceUnavailable, FromKind("internal"))
	assert.Equal(t, ErrServiceUnavailable, FromKind(""))
}

// Package apperr defines the user-facing error categories of the reservation flow.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrValidation            = errors.New("invalid request")
	ErrNotFound              = errors.New("not found")
	ErrSystemUnavailable     = errors.New("system unavailable")
	ErrQuoteExpired          = errors.New("quote expired")
	ErrPaymentDeclined       = errors.New("payment declined")
	ErrDatesUnavailable      = errors.New("dates unavailable")
	ErrServiceUnavailable    = errors.New("service unavailable")
	ErrReservationInProgress = errors.New("reservation in progress")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrSystemUnavailable):
		return "system_unavailable"

	case errors.Is(err, ErrQuoteExpired):
		return "quote_expired"

	case errors.Is(err, ErrPaymentDeclined):
		return "payment_declined"

	case errors.Is(err, ErrDatesUnavailable):
		return "dates_unavailable"

	case errors.Is(err, ErrReservationInProgress):
		return "in_progress"

	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrQuoteExpired):
		return http.StatusGone

	case errors.Is(err, ErrPaymentDeclined):
		return http.StatusPaymentRequired

	case errors.Is(err, ErrDatesUnavailable),
		errors.Is(err, ErrReservationInProgress):
		return http.StatusConflict

	case errors.Is(err, ErrSystemUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// Message is the text safe to show an end user. Vendor error text never reaches it.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "The requested item was not found."
	case errors.Is(err, ErrQuoteExpired):
		return "Your quote has expired. Please refresh your quote and try again."
	case errors.Is(err, ErrPaymentDeclined):
		return "Your payment was declined. Please check your card details or use another card."
	case errors.Is(err, ErrDatesUnavailable):
		return "These dates are no longer available. Please choose different dates."
	case errors.Is(err, ErrReservationInProgress):
		return "This reservation is already being processed."
	case errors.Is(err, ErrSystemUnavailable):
		return "Our booking system is temporarily unavailable. You have not been charged. Please try again shortly."
	default:
		return "The booking service is temporarily unavailable. Please try again."
	}
}

// FromKind is the inverse of Kind for the category errors. Unknown kinds map
// to ErrServiceUnavailable.
func FromKind(kind string) error {
	switch kind {
	case "validation":
		return ErrValidation
	case "not_found":
		return ErrNotFound
	case "system_unavailable":
		return ErrSystemUnavailable
	case "quote_expired":
		return ErrQuoteExpired
	case "payment_declined":
		return ErrPaymentDeclined
	case "dates_unavailable":
		return ErrDatesUnavailable
	case "in_progress":
		return ErrReservationInProgress
	default:
		return ErrServiceUnavailable
	}
}

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is a non-2xx response from the upstream booking API.
type Error struct {
	Endpoint   string
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
	Body       []byte
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("upstream %s: %d %s: %s", e.Endpoint, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("upstream %s: %d: %s", e.Endpoint, e.StatusCode, msg)
}

func (e *Error) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Temporary reports whether the call may succeed when repeated.
func (e *Error) Temporary() bool {
	return e.RateLimited() || e.StatusCode >= http.StatusInternalServerError
}

// TransportError is a failure to get any response at all.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a 2xx response whose body could not be read as expected.
// The vendor did accept the request.
type DecodeError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode upstream %s response (%d): %v", e.Endpoint, e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MayHaveSucceeded reports whether the vendor could have acted on a request
// that ended with err: the request may have reached it but no definite
// rejection came back.
func MayHaveSucceeded(err error) bool {
	if err == nil {
		return false
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if ue, ok := AsError(err); ok {
		return ue.StatusCode >= http.StatusInternalServerError || ue.StatusCode == http.StatusRequestTimeout
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// AsError extracts the typed upstream error, if any.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

type errorPayload struct {
	Error            interface{} `json:"error"`
	ErrorCode        string      `json:"error_code"`
	Code             string      `json:"code"`
	Message          string      `json:"message"`
	ErrorDescription string      `json:"error_description"`
}

// parseErrorPayload accepts the few error shapes the vendor has been seen to
// return: {"error": "code", "message": ...}, {"error": {"code", "message"}},
// and OAuth-style {"error", "error_description"}.
func parseErrorPayload(body []byte) (code, message string) {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", strings.TrimSpace(truncate(string(body), 512))
	}

	code = firstNonEmpty(p.ErrorCode, p.Code)
	message = firstNonEmpty(p.Message, p.ErrorDescription)

	switch v := p.Error.(type) {
	case string:
		if code == "" {
			code = v
		}
	case map[string]interface{}:
		if c, ok := v["code"].(string); ok && code == "" {
			code = c
		}
		if m, ok := v["message"].(string); ok && message == "" {
			message = m
		}
	}
	return code, message
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h string, fallback time.Duration) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(h, 64)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package coingecko

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedPayload marks a 2xx response whose body could not be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrTimeout marks a request that did not complete in time.
	ErrTimeout = errors.New("request timeout")
	// ErrNoResponse marks a request that never got a response.
	ErrNoResponse = errors.New("no response from server")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func newAPIError(status int) *APIError {
	var msg string
	switch status {
	case http.StatusTooManyRequests:
		msg = "API rate limit reached. Free tier allows 10-30 calls/minute."
	case http.StatusNotFound:
		msg = "Data not found. The cryptocurrency might not exist."
	default:
		msg = fmt.Sprintf("API Error: %d", status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// IsRateLimited reports whether err is a 429 from the API.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// Describe returns a human-readable message for a fetch failure.
func Describe(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrTimeout):
		return "Request timeout. The API is taking too long to respond."
	case errors.Is(err, ErrNoResponse):
		return "No response from server. Check your internet connection."
	case errors.Is(err, ErrMalformedPayload):
		return "The API returned data in an unexpected format."
	default:
		return "Network error"
	}
}

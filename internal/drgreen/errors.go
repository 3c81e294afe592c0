package drgreen

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingCredentials matches every MissingCredentialsError.
var ErrMissingCredentials = errors.New("drgreen: credentials not configured")

// MissingCredentialsError is returned before any network I/O when the API key
// or secret key is absent.
type MissingCredentialsError struct {
	Field string
}

func (e *MissingCredentialsError) Error() string {
	return "drgreen: missing credential " + e.Field
}

func (e *MissingCredentialsError) Is(target error) bool { return target == ErrMissingCredentials }

// ExternalAPIError is a non-2xx upstream response. Body holds the parsed JSON
// when the response was JSON, Raw the text otherwise.
type ExternalAPIError struct {
	StatusCode int
	StatusText string
	Body       any
	Raw        string
}

func (e *ExternalAPIError) Error() string {
	msg := fmt.Sprintf("drgreen: upstream returned %d %s", e.StatusCode, e.StatusText)
	if m := e.Message(); m != "" {
		msg += ": " + m
	}
	return msg
}

// Message returns the upstream "message" field when present.
func (e *ExternalAPIError) Message() string { return messageOf(e.Body) }

// UpstreamLogicError is a 2xx response whose envelope does not report success.
type UpstreamLogicError struct {
	Message string
	Body    any
}

func (e *UpstreamLogicError) Error() string {
	if e.Message == "" {
		return "drgreen: upstream reported failure"
	}
	return "drgreen: upstream reported failure: " + e.Message
}

// SigningError wraps a key or signing failure.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return "drgreen: signing failed: " + e.Err.Error() }
func (e *SigningError) Unwrap() error { return e.Err }

func messageOf(body any) string {
	m, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range []string{"message", "error"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// FriendlyMessage turns a client error into text suitable for an end user.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	upstream := ""
	var apiErr *ExternalAPIError
	var logicErr *UpstreamLogicError
	switch {
	case errors.As(err, &logicErr):
		upstream = logicErr.Message
	case errors.As(err, &apiErr):
		upstream = apiErr.Message()
	}
	lower := strings.ToLower(upstream)
	switch {
	case strings.Contains(lower, "consultation"):
		return "Please complete your consultation before ordering."
	case strings.Contains(lower, "kyc") || strings.Contains(lower, "verification"):
		return "Your identity verification is still pending. Please try again once it is approved."
	case strings.Contains(lower, "stock") || strings.Contains(lower, "unavailable"):
		return "One or more items are currently unavailable."
	}
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "Ordering is not configured for this store yet. Please contact the store."
	case errors.Is(err, ErrCircuitOpen):
		return "Our fulfilment partner is temporarily unavailable. Please try again shortly."
	}
	var signErr *SigningError
	if errors.As(err, &signErr) {
		return "Ordering is misconfigured for this store. Please contact the store."
	}
	if apiErr != nil {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return "Ordering is misconfigured for this store. Please contact the store."
		case apiErr.StatusCode == http.StatusNotFound:
			return "The requested record could not be found."
		case apiErr.StatusCode >= 500:
			return "Our fulfilment partner is temporarily unavailable. Please try again shortly."
		}
	}
	if upstream != "" {
		return upstream
	}
	return "Something went wrong while contacting our fulfilment partner. Please try again."
}

package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrUnauthenticated is returned when no token is set or the provider
// rejects the token.
var ErrUnauthenticated = errors.New("no valid access token")

// Kind classifies a failed provider call.
type Kind int

const (
	// KindRemote covers non-2xx responses without a more specific kind and
	// malformed response bodies.
	KindRemote Kind = iota
	// KindPermissionDenied is a 403: the token lacks a required scope.
	KindPermissionDenied
	// KindRateLimited is a 429. It is never retried here.
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "remote_error"
	}
}

// forbiddenFallback is used when a 403 body carries no usable detail.
const forbiddenFallback = "access forbidden, check the granted permissions"

// APIError is a classified provider failure.
type APIError struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for malformed 2xx bodies
	Reason  string // provider reason code, e.g. "insufficientPermissions"
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsPermissionDenied reports whether err is a 403 from the provider.
func IsPermissionDenied(err error) bool {
	return hasKind(err, KindPermissionDenied)
}

// IsRateLimited reports whether err is a 429 from the provider.
func IsRateLimited(err error) bool {
	return hasKind(err, KindRateLimited)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func hasKind(err error, kind Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// classifyResponse turns a non-2xx response into an error. It consumes the
// response body.
func classifyResponse(resp *http.Response) error {
	detail, reason := "", ""
	var gerr *googleapi.Error
	if errors.As(googleapi.CheckResponse(resp), &gerr) {
		detail = gerr.Message
		if len(gerr.Errors) > 0 {
			reason = gerr.Errors[0].Reason
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if detail == "" {
			detail = "token rejected"
		}
		return fmt.Errorf("%w: %s", ErrUnauthenticated, detail)

	case http.StatusForbidden:
		msg := forbiddenFallback
		if detail != "" {
			msg = detail + ": " + forbiddenFallback
		}
		return &APIError{
			Kind:    KindPermissionDenied,
			Status:  resp.StatusCode,
			Reason:  reason,
			Message: msg,
		}

	case http.StatusTooManyRequests:
		return &APIError{
			Kind:    KindRateLimited,
			Status:  resp.StatusCode,
			Reason:  reason,
			Message: "rate limit exceeded, try again later",
		}

	default:
		return &APIError{
			Kind:    KindRemote,
			Status:  resp.StatusCode,
			Reason:  reason,
			Message: fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}
}

// malformed wraps a decode failure of a 2xx body.
func malformed(what string, err error) error {
	msg := fmt.Sprintf("invalid response format from Gmail API: %s", what)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &APIError{Kind: KindRemote, Message: msg}
}

package controlplane

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/guildhost/guildhost/internal/domain"
)

// APIError is a non-2xx control-plane response, carrying the status code and
// raw body for logging.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control plane API %d: %s", e.StatusCode, e.Body)
}

// Is makes a 404 APIError match domain.ErrNotFound via errors.Is.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a control-plane 404.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// IsForbidden reports whether err is a control-plane 403.
func IsForbidden(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusForbidden
}

// IsTransient reports whether err is eligible for retry: a 5xx response or a
// 409 conflict raised while the instance is still installing.
func IsTransient(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode >= 500 || IsStillInstalling(err)
}

// IsStillInstalling reports whether err is the control plane refusing a
// mutating call because the instance's install has not finished. These races
// are retried with linear backoff before giving up.
func IsStillInstalling(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.StatusCode != http.StatusConflict {
		return false
	}
	return strings.Contains(strings.ToLower(ae.Body), "install")
}

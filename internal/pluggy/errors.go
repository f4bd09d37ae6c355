package pluggy

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the aggregator API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (err *APIError) Error() string {
	if err.Code != "" {
		return fmt.Sprintf("pluggy: HTTP %d: %s (%s)", err.StatusCode, err.Message, err.Code)
	}
	return fmt.Sprintf("pluggy: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsUnauthorized reports whether err is a 401 or 403 from the aggregator.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// IsNotFound reports whether err is a 404 from the aggregator.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

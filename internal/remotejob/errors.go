package remotejob

import "fmt"

// APIError is returned for HTTP failures and for envelopes carrying a
// non-success code.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (code %d): %s", e.Code, e.Message)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *APIError) IsUnauthorised() bool {
	return e.StatusCode == 401
}

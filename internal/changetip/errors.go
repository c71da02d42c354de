package changetip

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotAuthenticated reports that no access token is stored.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidParameters reports an operation invoked with unknown, missing or
	// malformed parameters.
	ErrInvalidParameters = errors.New("invalid parameters")
)

// AuthError reports a missing credential or a failed OAuth2 step.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure (StatusCode 0) or a non-2xx response.
type NetworkError struct {
	Op         string
	StatusCode int
	// Body holds the beginning of a non-2xx response body.
	Body string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("%s: unexpected status %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
		}
		return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a response body that is not a JSON object.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decoding response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a NetworkError carrying HTTP 401, the
// signal that the access token expired and a refresh may help.
func IsUnauthorized(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.StatusCode == http.StatusUnauthorized
}

package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrNotFound is returned when the provider does not know a message ID
var ErrNotFound = errors.New("message not found")

// ProviderError carries a failed Gmail API call together with the HTTP status
// the provider answered with.
type ProviderError struct {
	Op   string
	Code int
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gmail %s failed with status %d: %v", e.Op, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// wrapAPIError maps googleapi errors onto ErrNotFound and ProviderError
func wrapAPIError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusNotFound {
			return fmt.Errorf("gmail %s: %w", op, ErrNotFound)
		}
		return &ProviderError{Op: op, Code: apiErr.Code, Err: err}
	}

	return fmt.Errorf("gmail %s: %w", op, err)
}

package status

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorInfo describes a request the node rejected. The message is the error
// returned by the node, which only contains user visible state.
type ErrorInfo struct {
	// StatusCode contains the HTTP status code.
	StatusCode int

	// Message contains the error message returned by the node.
	Message string
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf(
		"%s (%d): %s",
		strings.ToLower(http.StatusText(e.StatusCode)),
		e.StatusCode,
		e.Message,
	)
}

// FromError returns the ErrorInfo in err's chain. Returns false if the error
// didn't come from the node, such as a connection failure.
func FromError(err error) (*ErrorInfo, bool) {
	var errorInfo *ErrorInfo
	if errors.As(err, &errorInfo) {
		return errorInfo, true
	}
	return nil, false
}

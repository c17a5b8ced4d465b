package protocol

import "fmt"

// RemoteError is what an ErrorResponse becomes on the client side: the
// service's original diagnostics, raised as an error instead of a value.
type RemoteError struct {
	Message       string
	ExceptionKind string
	StackTrace    string
}

func (e *RemoteError) Error() string {
	if e.ExceptionKind != "" {
		return fmt.Sprintf("remote error (%s): %s", e.ExceptionKind, e.Message)
	}
	return "remote error: " + e.Message
}

// NewErrorResponse builds the envelope the server sends when a local
// collaborator fails while handling the request with the given correlation id.
func NewErrorResponse(correlationID string, err error) *ErrorResponse {
	resp := &ErrorResponse{
		Message:       err.Error(),
		ExceptionKind: fmt.Sprintf("%T", err),
	}
	resp.CorrelationID = correlationID
	return resp
}

// AsError converts a received ErrorResponse into a RemoteError.
func (r *ErrorResponse) AsError() *RemoteError {
	return &RemoteError{
		Message:       r.Message,
		ExceptionKind: r.ExceptionKind,
		StackTrace:    r.StackTrace,
	}
}

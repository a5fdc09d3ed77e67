// Package utils provides the HTTP transport's handler-error and
// per-request context types, adapted from the controller/route split
// apiserver's utils/error.go uses. The response envelope itself lives in
// apiserver/server.
package utils

// HandlerError is an error returned from a route handler, carrying both
// the HTTP status to send and the client-facing message.
type HandlerError struct {
	Code    int
	Message string
	Details string
}

func (hErr *HandlerError) Error() string {
	return hErr.Message
}

// NewHandlerError returns a HandlerError with the given status and message.
func NewHandlerError(code int, message string) *HandlerError {
	return &HandlerError{Code: code, Message: message}
}

// NewHandlerErrorWithDetails returns a HandlerError carrying a details
// string alongside the top-level message, matching responses like
// {"error":"address not sent","details":"address is required"}.
func NewHandlerErrorWithDetails(code int, message, details string) *HandlerError {
	return &HandlerError{Code: code, Message: message, Details: details}
}

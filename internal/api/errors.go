package api

import "net/http"

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error codes.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewBadRequest creates a bad request error with a custom message.
func NewBadRequest(message string) *Error {
	return &Error{Code: ErrCodeBadRequest, Message: message, Status: http.StatusBadRequest}
}

// NewNotFound creates a not found error with a custom message.
func NewNotFound(message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message, Status: http.StatusNotFound}
}

// ErrInternalServer is returned for unexpected failures.
var ErrInternalServer = &Error{
	Code:    ErrCodeInternalError,
	Message: "internal server error",
	Status:  http.StatusInternalServerError,
}

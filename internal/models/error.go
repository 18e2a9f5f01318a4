package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeSessionBusy     = "SESSION_BUSY"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeFileNotFound    = "FILE_NOT_FOUND"
)

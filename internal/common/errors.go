package common

// AppError is a failure the client can act on: a stable reason code, a
// message safe to return, and the HTTP status it maps to.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
}

// NewAppError builds a client-visible error.
func NewAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	return e.Code + ": " + e.Message
}

package utils

import "net/http"

// Error codes reported in the error body.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUsernameConflict   = "USERNAME_CONFLICT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is a failure that maps directly onto an HTTP response.
type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string {
	return e.Code + ": " + e.Message
}

// ValidationError reports malformed or out-of-range input.
func ValidationError(message string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

// ConflictError reports a duplicate username.
func ConflictError(message string) *AppError {
	return &AppError{Status: http.StatusConflict, Code: CodeUsernameConflict, Message: message}
}

// InvalidCredentials is deliberately vague about which field was wrong.
func InvalidCredentials() *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeInvalidCredentials, Message: "invalid username or password"}
}

func Unauthorized(message string) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

func TokenExpired() *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeTokenExpired, Message: "token has expired"}
}

func InvalidToken() *AppError {
	return &AppError{Status: http.StatusUnauthorized, Code: CodeInvalidToken, Message: "token is invalid"}
}

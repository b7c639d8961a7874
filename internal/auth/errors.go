package auth

import (
	"fmt"
	"net/http"
)

// Error codes reported to API clients.
const (
	CodeHeaderMissing = "authorization_header_missing"
	CodeInvalidHeader = "invalid_header"
	CodeTokenExpired  = "token_expired"
	CodeInvalidClaims = "invalid_claims"
	CodeUnauthorized  = "unauthorized"

	CodeKeysUnavailable = "signing_keys_unavailable"
)

// Error is an authentication or authorization failure with the HTTP status
// it should be reported with.
type Error struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Status      int    `json:"-"`
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.cause)
	}
	return e.Code + ": " + e.Description
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(status int, code, description string, cause error) *Error {
	return &Error{Code: code, Description: description, Status: status, cause: cause}
}

func errHeaderMissing() *Error {
	return newError(http.StatusUnauthorized, CodeHeaderMissing, "Authorization header is expected.", nil)
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/eugenenazirov/coffee-shop/internal/auth"
	"github.com/eugenenazirov/coffee-shop/internal/drinks"
)

var errorMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized Access",
	http.StatusNotFound:            "Resource is not found",
	http.StatusUnprocessableEntity: "Unprocessable Entity",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusInternalServerError: "Internal Server Error",
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type drinksResponse[T any] struct {
	Success bool `json:"success"`
	Drinks  []T  `json:"drinks"`
}

type deleteResponse struct {
	Success bool  `json:"success"`
	Delete  int64 `json:"delete"`
}

// drinkRequest is the body accepted by POST /drinks and PATCH /drinks/{id}.
// Title is a pointer so PATCH can tell an absent title from an empty one.
type drinkRequest struct {
	Title  *string       `json:"title"`
	Recipe drinks.Recipe `json:"recipe"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int) {
	message, ok := errorMessages[status]
	if !ok {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: status, Message: message})
}

// writeAuthError reports err in the {"code","description"} shape used for
// authentication failures.
func writeAuthError(w http.ResponseWriter, err error) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		writeJSON(w, authErr.Status, authErr)
		return
	}
	writeError(w, http.StatusUnauthorized)
}

package drinks

import "errors"

var (
	// ErrNotFound is returned when no drink exists for the requested id.
	ErrNotFound = errors.New("drink not found")
	// ErrInvalidDrink is returned when a title or recipe fails validation.
	ErrInvalidDrink = errors.New("invalid drink")
	// ErrDuplicateTitle is returned when another drink already uses the title.
	ErrDuplicateTitle = errors.New("drink title already exists")
)

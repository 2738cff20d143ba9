package expense

import (
	"errors"
	"time"
)

type Expense struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Date      Date      `json:"date"`
	Category  string    `json:"category,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var ErrNotFound = errors.New("expense not found")

// per-user title uniqueness violation
var ErrDuplicateTitle = errors.New("duplicate expense title")

// WriteExpenseRequest is the payload for both create and full update; the
// field rules are identical on the two paths.
type WriteExpenseRequest struct {
	Title    string   `json:"title" binding:"required,max=255"`
	Amount   *float64 `json:"amount" binding:"required"`
	Date     Date     `json:"date" binding:"required"`
	Category string   `json:"category" binding:"omitempty,max=255"`
	Notes    string   `json:"notes"`
}

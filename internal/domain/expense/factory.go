package expense

import (
	"time"

	"github.com/google/uuid"
)

// NewFromWriteRequest builds a new Expense owned by userID from the incoming DTO.
func NewFromWriteRequest(userID string, req WriteExpenseRequest) Expense {
	now := time.Now().UTC()

	var amount float64
	if req.Amount != nil {
		amount = *req.Amount
	}

	return Expense{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     req.Title,
		Amount:    amount,
		Date:      req.Date,
		Category:  req.Category,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

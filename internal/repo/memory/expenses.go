package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/expensehub/expensehub/internal/domain/expense"
)

// ExpensesRepo mirrors the postgres repo semantics in process memory:
// ownership filtering, per-user title uniqueness and date-descending listing.
type ExpensesRepo struct {
	mu    sync.RWMutex
	items map[string]expense.Expense
}

func NewExpensesRepo() *ExpensesRepo {
	return &ExpensesRepo{
		items: make(map[string]expense.Expense),
	}
}

func (r *ExpensesRepo) ListByUser(_ context.Context, userID string) ([]expense.Expense, error) {
	r.mu.RLock()

	out := make([]expense.Expense, 0)

	for _, e := range r.items {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Before(out[j].Date) || out[j].Date.Before(out[i].Date) {
			return out[j].Date.Before(out[i].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *ExpensesRepo) Create(_ context.Context, userID string, req expense.WriteExpenseRequest) (expense.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.UserID == userID && sameTitle(existing.Title, req.Title) {
			return expense.Expense{}, expense.ErrDuplicateTitle
		}
	}

	e := expense.NewFromWriteRequest(userID, req)
	r.items[e.ID] = e

	return e, nil
}

func (r *ExpensesRepo) GetOwned(_ context.Context, userID, id string) (expense.Expense, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.items[id]

	if !ok || e.UserID != userID {
		return expense.Expense{}, expense.ErrNotFound
	}

	return e, nil
}

func (r *ExpensesRepo) Update(_ context.Context, userID, id string, req expense.WriteExpenseRequest) (expense.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[id]

	if !ok || e.UserID != userID {
		return expense.Expense{}, expense.ErrNotFound
	}

	for _, existing := range r.items {
		if existing.ID != id && existing.UserID == userID && sameTitle(existing.Title, req.Title) {
			return expense.Expense{}, expense.ErrDuplicateTitle
		}
	}

	e.Title = req.Title
	if req.Amount != nil {
		e.Amount = *req.Amount
	}
	e.Date = req.Date
	e.Category = req.Category
	e.Notes = req.Notes
	e.UpdatedAt = time.Now().UTC()

	r.items[id] = e

	return e, nil
}

func (r *ExpensesRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[id]

	if !ok || e.UserID != userID {
		return expense.ErrNotFound
	}

	delete(r.items, id)

	return nil
}

// exact match, mirroring the (user_id, title) unique index in postgres
func sameTitle(a, b string) bool {
	return a == b
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/expensehub/expensehub/internal/config"
	"github.com/expensehub/expensehub/internal/domain/expense"
	"github.com/expensehub/expensehub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExpenseStore is the ownership-scoped data-access contract. Every operation
// takes the caller's userID explicitly; the store never reads identity from
// anywhere else.
type ExpenseStore interface {
	ListByUser(ctx context.Context, userID string) ([]expense.Expense, error)
	Create(ctx context.Context, userID string, req expense.WriteExpenseRequest) (expense.Expense, error)
	GetOwned(ctx context.Context, userID, id string) (expense.Expense, error)
	Update(ctx context.Context, userID, id string, req expense.WriteExpenseRequest) (expense.Expense, error)
	Delete(ctx context.Context, userID, id string) error
}

type ExpensesHandler struct {
	store ExpenseStore
}

func NewExpensesHandler(store ExpenseStore) *ExpensesHandler {
	return &ExpensesHandler{store: store}
}

func (h *ExpensesHandler) ListExpenses(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Unauthenticated.")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	expenses, err := h.store.ListByUser(cctx, userID)

	if err != nil {
		RespondInternal(ctx, "Could not list expenses")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, expenses)
}

func (h *ExpensesHandler) CreateExpense(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Unauthenticated.")
		return
	}

	var req expense.WriteExpenseRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	created, err := h.store.Create(cctx, userID, req)

	if err != nil {
		if errors.Is(err, expense.ErrDuplicateTitle) {
			RespondUnprocessable(ctx, "An expense with this title already exists.")
			return
		}

		RespondInternal(ctx, "Could not create expense")
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

func (h *ExpensesHandler) GetExpenseByID(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Unauthenticated.")
		return
	}

	id := ctx.Param("id")

	// a malformed id can never match a row; same response as a missing one
	if uuid.Validate(id) != nil {
		RespondNotFound(ctx, "Expense not found")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	e, err := h.store.GetOwned(cctx, userID, id)

	if err != nil {
		if errors.Is(err, expense.ErrNotFound) {
			RespondNotFound(ctx, "Expense not found")
			return
		}

		RespondInternal(ctx, "Could not fetch expense")
		return
	}

	ctx.JSON(http.StatusOK, e)
}

func (h *ExpensesHandler) UpdateExpense(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Unauthenticated.")
		return
	}

	id := ctx.Param("id")

	if uuid.Validate(id) != nil {
		RespondNotFound(ctx, "Expense not found")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	// locate first: an absent or foreign row is a 404 even when the body is bad
	if _, err := h.store.GetOwned(cctx, userID, id); err != nil {
		if errors.Is(err, expense.ErrNotFound) {
			RespondNotFound(ctx, "Expense not found")
			return
		}

		RespondInternal(ctx, "Could not update expense")
		return
	}

	var req expense.WriteExpenseRequest

	if !BindJSON(ctx, &req) {
		return
	}

	updated, err := h.store.Update(cctx, userID, id, req)

	if err != nil {
		switch {
		case errors.Is(err, expense.ErrNotFound):
			RespondNotFound(ctx, "Expense not found")
		case errors.Is(err, expense.ErrDuplicateTitle):
			RespondUnprocessable(ctx, "An expense with this title already exists.")
		default:
			RespondInternal(ctx, "Could not update expense")
		}
		return
	}

	ctx.JSON(http.StatusOK, updated)
}

func (h *ExpensesHandler) DeleteExpense(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnauthorized(ctx, "Unauthenticated.")
		return
	}

	id := ctx.Param("id")

	if uuid.Validate(id) != nil {
		RespondNotFound(ctx, "Expense not found")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	err := h.store.Delete(cctx, userID, id)

	if err != nil {
		if errors.Is(err, expense.ErrNotFound) {
			RespondNotFound(ctx, "Expense not found")
			return
		}

		RespondInternal(ctx, "Could not delete expense")
		return
	}

	RespondMessage(ctx, "Expense deleted successfully")
}

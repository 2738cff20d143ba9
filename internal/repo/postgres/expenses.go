package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/expensehub/expensehub/internal/domain/expense"
	"github.com/expensehub/expensehub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExpensesRepo is a plain data-access layer over the expenses table. Every
// read and write takes the owning userID as an explicit argument; the
// ownership filter lives in the SQL predicate, so a row owned by someone else
// is indistinguishable from a missing one.
type ExpensesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewExpensesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ExpensesRepo {
	return &ExpensesRepo{pool: pool, prom: prom}
}

func (r *ExpensesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ExpensesRepo) ListByUser(ctx context.Context, userID string) ([]expense.Expense, error) {
	var out []expense.Expense

	err := r.observe("expenses.list", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, user_id, title, amount, date, category, notes, created_at, updated_at
			 FROM expenses
			 WHERE user_id = $1
			 ORDER BY date DESC, created_at DESC`,
			userID,
		)

		if err != nil {
			return err
		}

		defer rows.Close()

		out = make([]expense.Expense, 0)

		for rows.Next() {
			e, err := scanExpense(rows)

			if err != nil {
				return err
			}

			out = append(out, e)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *ExpensesRepo) Create(ctx context.Context, userID string, req expense.WriteExpenseRequest) (expense.Expense, error) {
	e := expense.NewFromWriteRequest(userID, req)

	err := r.observe("expenses.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO expenses (id, user_id, title, amount, date, category, notes, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			e.ID, e.UserID, e.Title, e.Amount, e.Date.Time(), nullable(e.Category), nullable(e.Notes), e.CreatedAt, e.UpdatedAt,
		)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return expense.Expense{}, expense.ErrDuplicateTitle
		}
		return expense.Expense{}, err
	}

	return e, nil
}

func (r *ExpensesRepo) GetOwned(ctx context.Context, userID, id string) (expense.Expense, error) {
	var e expense.Expense

	err := r.observe("expenses.get", func() error {
		row := r.pool.QueryRow(ctx,
			`SELECT id, user_id, title, amount, date, category, notes, created_at, updated_at
			 FROM expenses
			 WHERE id = $1 AND user_id = $2`,
			id, userID,
		)

		var err error
		e, err = scanExpense(row)
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return expense.Expense{}, expense.ErrNotFound
		}
		return expense.Expense{}, err
	}

	return e, nil
}

func (r *ExpensesRepo) Update(ctx context.Context, userID, id string, req expense.WriteExpenseRequest) (expense.Expense, error) {
	var e expense.Expense

	err := r.observe("expenses.update", func() error {
		row := r.pool.QueryRow(ctx,
			`UPDATE expenses
				SET title = $3,
						amount = $4,
						date = $5,
						category = $6,
						notes = $7,
						updated_at = NOW()
			 WHERE id = $1 AND user_id = $2
			 RETURNING id, user_id, title, amount, date, category, notes, created_at, updated_at`,
			id, userID,
			req.Title, derefAmount(req.Amount), req.Date.Time(), nullable(req.Category), nullable(req.Notes),
		)

		var err error
		e, err = scanExpense(row)
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return expense.Expense{}, expense.ErrNotFound
		}
		if IsUniqueViolation(err) {
			return expense.Expense{}, expense.ErrDuplicateTitle
		}
		return expense.Expense{}, err
	}

	return e, nil
}

func (r *ExpensesRepo) Delete(ctx context.Context, userID, id string) error {
	var tagRows int64

	err := r.observe("expenses.delete", func() error {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM expenses WHERE id = $1 AND user_id = $2`,
			id, userID,
		)

		if err != nil {
			return err
		}

		tagRows = tag.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	// no rows deleted means absent or owned by someone else
	if tagRows == 0 {
		return expense.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (expense.Expense, error) {
	var (
		e        expense.Expense
		date     time.Time
		category *string
		notes    *string
	)

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Title,
		&e.Amount,
		&date,
		&category,
		&notes,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	if err != nil {
		return expense.Expense{}, err
	}

	e.Date = expense.NewDate(date)

	if category != nil {
		e.Category = *category
	}
	if notes != nil {
		e.Notes = *notes
	}

	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefAmount(a *float64) float64 {
	if a == nil {
		return 0
	}
	return *a
}

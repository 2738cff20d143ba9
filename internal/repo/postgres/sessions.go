package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionMismatch = errors.New("session token mismatch")
)

// SessionRow is one issued refresh token. Only the HMAC of the raw token is
// stored; presenting a token whose hash does not match the row is rejected.
type SessionRow struct {
	ID         string // refresh token jti
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

type SessionsRepo struct {
	pool *pgxpool.Pool
}

func NewSessionsRepo(pool *pgxpool.Pool) *SessionsRepo {
	return &SessionsRepo{pool: pool}
}

func (r *SessionsRepo) Create(ctx context.Context, row SessionRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.RevokedAt, row.ReplacedBy, row.CreatedAt,
	)
	return err
}

// Rotate atomically retires the session identified by oldID and records
// newRow as its replacement. The old row is locked for the duration of the
// transaction so two concurrent refreshes cannot both succeed.
func (r *SessionsRepo) Rotate(ctx context.Context, oldID, presentedHash string, newRow SessionRow) (SessionRow, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return SessionRow{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	old, err := getForUpdate(ctx, tx, oldID)

	if err != nil {
		return SessionRow{}, err
	}

	if old.RevokedAt != nil {
		return SessionRow{}, ErrSessionRevoked
	}

	if time.Now().UTC().After(old.ExpiresAt) {
		return SessionRow{}, ErrSessionExpired
	}

	// prevents token substitution: the presented token must hash to the row
	if old.TokenHash != presentedHash {
		return SessionRow{}, ErrSessionMismatch
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = NOW(), replaced_by = $2
		WHERE id = $1
	`, old.ID, newRow.ID)

	if err != nil {
		return SessionRow{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		newRow.ID, newRow.UserID, newRow.TokenHash, newRow.ExpiresAt, newRow.RevokedAt, newRow.ReplacedBy, newRow.CreatedAt,
	)

	if err != nil {
		return SessionRow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SessionRow{}, err
	}

	return old, nil
}

// Revoke retires a single session; revoking an unknown id is a no-op.
func (r *SessionsRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`, id)

	return err
}

func (r *SessionsRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)

	return err
}

func getForUpdate(ctx context.Context, tx pgx.Tx, id string) (SessionRow, error) {
	var row SessionRow

	err := tx.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&row.ID,
		&row.UserID,
		&row.TokenHash,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.ReplacedBy,
		&row.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRow{}, ErrSessionNotFound
		}

		return SessionRow{}, err
	}

	return row, nil
}

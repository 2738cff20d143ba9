package db

import (
	"context"
	"errors"
	"time"

	"github.com/expensehub/expensehub/internal/config"
	"github.com/expensehub/expensehub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSeedUser creates the bootstrap account from config if it does not
// exist yet. A no-op when SEED_EMAIL/SEED_PASSWORD are unset.
func EnsureSeedUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.SeedEmail == "" || cfg.SeedPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, cfg.SeedEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.SeedPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.NewString(), cfg.SeedEmail, hash, cfg.SeedName, now, now,
	)

	return err
}

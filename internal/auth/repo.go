package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	q db.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q}
}

const userSelect = `SELECT u.id, u.name, u.email, u.password_hash, u.warehouse_id, w.code,
	u.is_active, u.last_login_at, u.created_at
FROM users u
JOIN warehouses w ON w.id = u.warehouse_id`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u         User
		lastLogin *time.Time
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.WarehouseID, &u.WarehouseCode,
		&u.IsActive, &lastLogin, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.LastLoginAt = lastLogin
	return &u, nil
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.q.QueryRow(ctx, userSelect+` WHERE lower(u.email) = $1`, strings.ToLower(strings.TrimSpace(email))))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.q.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
}

// TouchLogin records the time of a successful login.
func (r *PGRepository) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.q.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at.UTC()); err != nil {
		return fmt.Errorf("auth: touch login: %w", err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)

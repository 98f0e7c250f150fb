package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/db"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// ErrDuplicateEmail indicates the unique email constraint fired.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository persists users and tokens in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, COALESCE(full_name,''), password_hash, is_active, created_at, updated_at`

// FindByEmail fetches a user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// CreateUserWithRole inserts the user and its initial role assignment in one
// transaction. A missing role or duplicate email rolls back the whole insert,
// so no user ever exists without its role.
func (r *Repository) CreateUserWithRole(ctx context.Context, email, fullName, passwordHash, roleName string) (int64, error) {
	var userID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, is_active, created_at, updated_at)
VALUES ($1,$2,$3,true,NOW(),NOW()) RETURNING id`, email, fullName, passwordHash).Scan(&userID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateEmail
			}
			return err
		}

		var roleID int64
		err = tx.QueryRow(ctx, `SELECT id FROM roles WHERE name=$1`, roleName).Scan(&roleID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: role %q", shared.ErrNotFound, roleName)
			}
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1,$2)`, userID, roleID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// DeactivateUser clears the active flag.
func (r *Repository) DeactivateUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active=false, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateToken stores a token hash.
func (r *Repository) CreateToken(ctx context.Context, token Token) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO api_tokens (token_hash, user_id, expires_at, created_at)
VALUES ($1,$2,$3,NOW())`, token.Hash, token.UserID, token.ExpiresAt)
	return err
}

// ResolveToken returns the owning user id for an unexpired token hash.
func (r *Repository) ResolveToken(ctx context.Context, hash string) (int64, error) {
	var userID int64
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM api_tokens WHERE token_hash=$1 AND expires_at > NOW()`, hash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return userID, nil
}

// DeleteToken revokes a token.
func (r *Repository) DeleteToken(ctx context.Context, hash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM api_tokens WHERE token_hash=$1`, hash)
	return err
}

// DeleteExpiredTokens prunes tokens past their expiry.
func (r *Repository) DeleteExpiredTokens(ctx context.Context, before time.Time) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM api_tokens WHERE expires_at < $1`, before)
	return err
}

// AgentIDForUser returns the agent row linked to a user, or zero when the
// user is not a field agent.
func (r *Repository) AgentIDForUser(ctx context.Context, userID int64) (int64, error) {
	var agentID int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM agents WHERE user_id=$1`, userID).Scan(&agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return agentID, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

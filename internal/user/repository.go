// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
)

// Repository persists user records. Every mutating method is a single
// conditional statement (or one transaction), so a record is never left with
// half of its fields changed.
type Repository interface {
	// Create inserts user and assigns its role: admin when no account exists
	// yet, user otherwise. The decision and the insert are atomic.
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// TokenInUse reports whether token is an outstanding verification token
	// or tokenHash an outstanding reset token digest.
	TokenInUse(ctx context.Context, token, tokenHash string) (bool, error)
	// MarkEmailVerified consumes token, failing with core.ErrTokenInvalid
	// when no record currently holds it.
	MarkEmailVerified(ctx context.Context, token string) error
	SetResetToken(
		ctx context.Context,
		email, tokenHash string,
		expiresAt time.Time,
	) error
	// ConsumeResetToken swaps the password hash and clears the reset token
	// only while the token matches and has not expired at now.
	ConsumeResetToken(
		ctx context.Context,
		tokenHash, passwordHash string,
		now time.Time,
	) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params ListUsersParams) ([]User, int, error)
}

const (
	emailUniqueConstraint = "users_email_key"

	// Serializes registrations so only one can observe an empty table.
	firstAccountLockKey int64 = 0x6f72646572
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const userColumns = `id, name, email, password_hash, role, is_email_verified,
	       verification_token, reset_token_hash, reset_token_expiry,
	       created_at, updated_at`

func (r *repository) Create(ctx context.Context, user *User) error {
	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(
			ctx,
			`SELECT pg_advisory_xact_lock($1)`,
			firstAccountLockKey,
		); err != nil {
			return fmt.Errorf("acquire registration lock: %w", err)
		}

		var hasAccounts bool
		if err := tx.GetContext(
			ctx,
			&hasAccounts,
			`SELECT EXISTS(SELECT 1 FROM users)`,
		); err != nil {
			return fmt.Errorf("check existing accounts: %w", err)
		}

		user.Role = RoleAdmin
		if hasAccounts {
			user.Role = RoleUser
		}

		query := `
			INSERT INTO users (id, name, email, password_hash, role, verification_token)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`

		return tx.QueryRowxContext(ctx, query,
			user.ID,
			user.Name,
			user.Email,
			user.PasswordHash,
			user.Role,
			user.VerificationToken,
		).Scan(&user.CreatedAt, &user.UpdatedAt)
	})
	if err != nil {
		if isUniqueViolation(err, emailUniqueConstraint) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return &user, nil
}

func (r *repository) TokenInUse(
	ctx context.Context,
	token, tokenHash string,
) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM users
			WHERE verification_token = $1 OR reset_token_hash = $2
		)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, token, tokenHash); err != nil {
		return false, fmt.Errorf("check token in use: %w", err)
	}

	return exists, nil
}

func (r *repository) MarkEmailVerified(ctx context.Context, token string) error {
	query := `
		UPDATE users
		SET is_email_verified = TRUE, verification_token = '', updated_at = NOW()
		WHERE verification_token = $1 AND verification_token <> ''`

	return r.execAffectingOne(ctx, "verify email", core.ErrTokenInvalid, query, token)
}

func (r *repository) SetResetToken(
	ctx context.Context,
	email, tokenHash string,
	expiresAt time.Time,
) error {
	query := `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = NOW()
		WHERE email = $1`

	return r.execAffectingOne(
		ctx,
		"set reset token",
		core.ErrNotFound,
		query,
		email,
		tokenHash,
		expiresAt,
	)
}

func (r *repository) ConsumeResetToken(
	ctx context.Context,
	tokenHash, passwordHash string,
	now time.Time,
) error {
	query := `
		UPDATE users
		SET password_hash = $2,
		    reset_token_hash = NULL,
		    reset_token_expiry = NULL,
		    updated_at = NOW()
		WHERE reset_token_hash = $1 AND reset_token_expiry > $3`

	return r.execAffectingOne(
		ctx,
		"consume reset token",
		core.ErrTokenInvalid,
		query,
		tokenHash,
		passwordHash,
		now,
	)
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1`

	return r.execAffectingOne(ctx, "update password", core.ErrNotFound, query, id, passwordHash)
}

func (r *repository) Delete(ctx context.Context, id string) error {
	return r.execAffectingOne(ctx, "delete user", core.ErrNotFound,
		`DELETE FROM users WHERE id = $1`, id)
}

func (r *repository) List(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()

	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(email ILIKE $%d OR name ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	if params.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, params.Role)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM users WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, name, email, role, is_email_verified, created_at, updated_at
		FROM users
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	return users, total, nil
}

func (r *repository) execAffectingOne(
	ctx context.Context,
	op string,
	noRows error,
	query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, noRows)
	}

	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation &&
			pgErr.ConstraintName == constraint
	}
	return false
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

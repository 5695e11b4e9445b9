package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const userColumns = `id, name, email, password_hash, preferred_language, state, auth_provider, is_verified, verify_otp, verify_otp_expires, reset_otp, reset_otp_expires, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, user User) error {
	const query = `
INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		nullableString(user.PasswordHash),
		user.PreferredLanguage,
		user.State,
		user.AuthProvider,
		user.IsVerified,
		nullableString(user.VerifyOTP),
		nullableTime(user.VerifyOTPExpiry),
		nullableString(user.ResetOTP),
		nullableTime(user.ResetOTPExpiry),
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	return scanUser(r.DB.QueryRowContext(ctx, query, userID))
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	return scanUser(r.DB.QueryRowContext(ctx, query, email))
}

func (r *PGRepo) Update(ctx context.Context, user User) error {
	const query = `
UPDATE users
SET name = $2, email = $3, password_hash = $4, preferred_language = $5, state = $6,
    auth_provider = $7, is_verified = $8, verify_otp = $9, verify_otp_expires = $10,
    reset_otp = $11, reset_otp_expires = $12, updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		nullableString(user.PasswordHash),
		user.PreferredLanguage,
		user.State,
		user.AuthProvider,
		user.IsVerified,
		nullableString(user.VerifyOTP),
		nullableTime(user.VerifyOTPExpiry),
		nullableString(user.ResetOTP),
		nullableTime(user.ResetOTPExpiry),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) UpsertByEmail(ctx context.Context, user User) (User, error) {
	const query = `
INSERT INTO users (id, name, email, preferred_language, state, auth_provider, is_verified, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT (email) DO UPDATE SET
  name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
  updated_at = now()
RETURNING ` + userColumns
	return scanUser(r.DB.QueryRowContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PreferredLanguage,
		user.State,
		user.AuthProvider,
		user.IsVerified,
	))
}

func scanUser(row *sql.Row) (User, error) {
	var user User
	var passwordHash sql.NullString
	var verifyOTP sql.NullString
	var verifyExpiry sql.NullTime
	var resetOTP sql.NullString
	var resetExpiry sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&passwordHash,
		&user.PreferredLanguage,
		&user.State,
		&user.AuthProvider,
		&user.IsVerified,
		&verifyOTP,
		&verifyExpiry,
		&resetOTP,
		&resetExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.PasswordHash = passwordHash.String
	user.VerifyOTP = verifyOTP.String
	user.ResetOTP = resetOTP.String
	if verifyExpiry.Valid {
		user.VerifyOTPExpiry = verifyExpiry.Time
	}
	if resetExpiry.Valid {
		user.ResetOTPExpiry = resetExpiry.Time
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/agronect/apiserver/types"
)

const userColumns = `user_id, name, email, COALESCE(photo_profile_url, ''), password, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
	// strict makes Insert take a per-email advisory lock before a conditional
	// insert, so two concurrent signups with the same email cannot both succeed.
	strict bool
}

type UserRepositoryOption func(*UserRepository)

// WithStrictUniqueEmail makes Insert reject an email that is already stored.
func WithStrictUniqueEmail(strict bool) UserRepositoryOption {
	return func(r *UserRepository) {
		r.strict = strict
	}
}

func NewUserRepository(db *sql.DB, opts ...UserRepositoryOption) *UserRepository {
	r := &UserRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PhotoProfileURL,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// FindByEmail returns every user stored with exactly this email, oldest first.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1
		ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE user_id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Insert stores a new user. CreatedAt is taken from the record; UpdatedAt mirrors it.
func (r *UserRepository) Insert(ctx context.Context, user types.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt

	if r.strict {
		return r.insertIfEmailFree(ctx, user)
	}

	const query = `
		INSERT INTO users (user_id, name, email, photo_profile_url, password, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		user.PhotoProfileURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

// insertIfEmailFree serializes inserts per email with a transaction-scoped
// advisory lock. Under READ COMMITTED the conditional insert runs after the
// lock is granted, so it sees any row committed by the previous holder.
func (r *UserRepository) insertIfEmailFree(ctx context.Context, user types.User) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, user.Email); err != nil {
		return err
	}

	const query = `
		INSERT INTO users (user_id, name, email, photo_profile_url, password, created_at, updated_at)
		SELECT $1::text, $2::text, $3::text, NULLIF($4::text, ''), $5::text, $6::timestamptz, $7::timestamptz
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE email = $3::text)`
	result, err := tx.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		user.PhotoProfileURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDuplicateEmail
	}
	return tx.Commit()
}

// UpdateProfile replaces name, email and photo URL of an existing user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			email = $2,
			photo_profile_url = NULLIF($3, ''),
			updated_at = $4
		WHERE user_id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.PhotoProfileURL,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE users
		SET password = $1,
			updated_at = $2
		WHERE user_id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSignout stores a logout event keyed by the SHA-256 of the token.
func (r *UserRepository) RecordSignout(ctx context.Context, token string) error {
	sum := sha256.Sum256([]byte(token))

	const query = `
		INSERT INTO signouts (token_sha256, created_at)
		VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, query, hex.EncodeToString(sum[:]), time.Now())
	return err
}

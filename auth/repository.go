package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrinetwork/db"
)

var (
	// ErrUserNotFound signals that the user does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already exists")
)

// Repository handles data access for accounts.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	UpdateKYCStatus(ctx context.Context, userID string, status KYCStatus) (User, error)
}

// CreateUserParams are the values written for a new account. The password arrives
// already hashed.
type CreateUserParams struct {
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
}

// PGRepository is the Postgres account store.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id::text, email, full_name, password_hash, role, kyc_status, created_at, updated_at`

// queryUser runs a statement returning userColumns and maps the single row onto User
// by position. op names the operation in wrapped errors.
func (r *PGRepository) queryUser(ctx context.Context, op, sql string, args ...any) (User, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return User{}, fmt.Errorf("auth: %s: %w", op, err)
	}
	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[User])
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return User{}, ErrUserNotFound
	case db.IsUniqueViolation(err):
		return User{}, ErrDuplicateEmail
	default:
		return User{}, fmt.Errorf("auth: %s: %w", op, err)
	}
}

// CreateUser inserts an account; the email must be unused.
func (r *PGRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	return r.queryUser(ctx, "create user",
		`INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		params.Email, params.FullName, params.PasswordHash, params.Role)
}

func (r *PGRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return r.queryUser(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetUserByID retrieves a user by ID. Malformed IDs are reported as not found.
func (r *PGRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	if !db.IsUUID(userID) {
		return User{}, ErrUserNotFound
	}
	return r.queryUser(ctx, "get user by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// UpdateKYCStatus stores the verification outcome for a user.
func (r *PGRepository) UpdateKYCStatus(ctx context.Context, userID string, status KYCStatus) (User, error) {
	if !db.IsUUID(userID) {
		return User{}, ErrUserNotFound
	}
	return r.queryUser(ctx, "update kyc status",
		`UPDATE users SET kyc_status = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		userID, status)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/botlinkhq/botlink/internal/db"
)

// ErrInvalidCredentials is returned for unknown usernames and wrong
// passwords alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrAccountExists is returned when a username is already taken.
var ErrAccountExists = errors.New("account already exists")

// Account is a management API login.
type Account struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountStore persists accounts.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an account store on the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create registers an account with a bcrypt password hash.
func (s *AccountStore) Create(ctx context.Context, tenantID uuid.UUID, username, email, password, role string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var a Account
	var accEmail *string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO accounts (tenant_id, username, email, password_hash, role)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 RETURNING id, tenant_id, username, email, password_hash, role, is_active, created_at`,
		tenantID, username, email, string(hash), role,
	).Scan(&a.ID, &a.TenantID, &a.Username, &accEmail, &a.PasswordHash, &a.Role, &a.IsActive, &a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	if accEmail != nil {
		a.Email = *accEmail
	}
	return &a, nil
}

// Authenticate verifies a username and password pair.
func (s *AccountStore) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	var a Account
	var accEmail *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, username, email, password_hash, role, is_active, created_at
		 FROM accounts WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.TenantID, &a.Username, &accEmail, &a.PasswordHash, &a.Role, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	if !a.IsActive {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if accEmail != nil {
		a.Email = *accEmail
	}
	return &a, nil
}

// Exists reports whether any account is registered yet.
func (s *AccountStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	return exists, nil
}

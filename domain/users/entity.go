package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is an account that can sign in. The first account registered on an
// empty system is an administrator.
type User struct {
	bun.BaseModel `bun:"table:cmdb.users,alias:u"`

	ID           uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Email        string    `bun:"email" json:"email"`
	PasswordHash string    `bun:"password_hash" json:"-"`
	FirstName    string    `bun:"first_name" json:"first_name"`
	LastName     string    `bun:"last_name" json:"last_name"`
	IsActive     bool      `bun:"is_active" json:"is_active"`
	IsAdmin      bool      `bun:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at" json:"updated_at"`
}

// SearchResult is a user as shown in search results.
type SearchResult struct {
	ID        uuid.UUID `bun:"id" json:"id"`
	Email     string    `bun:"email" json:"email"`
	FirstName string    `bun:"first_name" json:"first_name"`
	LastName  string    `bun:"last_name" json:"last_name"`
}

// RegisterRequest is the body of POST /api/v1/auth/register.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,max=128"`
	FirstName string `json:"first_name" validate:"required,notblank,max=100"`
	LastName  string `json:"last_name" validate:"required,notblank,max=100"`
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	User      *User  `json:"user"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

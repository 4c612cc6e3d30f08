package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available application roles.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStudent UserRole = "ESTUDIANTE"
)

// User is an application account. Student accounts are created exactly once,
// atomically, when a pre-registration is activated.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Nombre       string     `db:"nombre" json:"nombre"`
	Apellido     string     `db:"apellido" json:"apellido"`
	DNI          *string    `db:"dni" json:"dni,omitempty"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// JWTClaims carries the authenticated identity through request handling.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

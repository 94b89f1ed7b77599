// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Email is the login identifier and the JWT subject. It is stored trimmed
// and lower-cased; the UNIQUE constraint on the column is what guarantees
// one account per address.
//
// WHY PasswordHash HAS json:"-"?
// The digest must never leave the server, even by accident when a handler
// encodes a whole User. The "-" tag makes encoding/json skip the field.
type User struct {
	ID           string     `json:"user_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"` // nil until the first login
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

package types

import "time"

// User represents an account in the system.
type User struct {
	// ID is the opaque unique identifier of the user.
	ID string `json:"user_id" db:"user_id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. Lookups compare it exactly.
	Email string `json:"email" db:"email"`

	// PhotoProfileURL is the public URL of the profile photo, empty when unset.
	PhotoProfileURL string `json:"photoProfileUrl" db:"photo_profile_url"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the submitted signup data echoed back to the caller, password excluded.
type Profile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

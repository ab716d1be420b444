// Package models defines the data structures shared by the liftlog server
// layers.
package models

import "time"

// User represents an account.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// Email is the login name chosen by the user.
	Email string `json:"email"`
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash []byte `json:"-"`
}

// RefreshToken is a stored refresh credential. Only its hash is kept.
type RefreshToken struct {
	Hash      string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
}

// Set is one set of an exercise.
type Set struct {
	Reps   int     `json:"reps" validate:"gt=0"`
	Weight float64 `json:"weight" validate:"gte=0"`
}

// Exercise groups the sets done for one movement.
type Exercise struct {
	Name string `json:"name" validate:"required"`
	Sets []Set  `json:"sets" validate:"dive"`
}

// Workout is one training session owned by a user.
type Workout struct {
	ID        string     `json:"id" validate:"required,max=64"`
	Name      string     `json:"name" validate:"required,max=120"`
	StartedAt time.Time  `json:"started_at" validate:"required"`
	Exercises []Exercise `json:"exercises" validate:"dive"`
	Notes     string     `json:"notes,omitempty" validate:"max=2000"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Measurement is a single body measurement.
type Measurement struct {
	ID      string    `json:"id" validate:"required,max=64"`
	Kind    string    `json:"kind" validate:"required,max=40"`
	Value   float64   `json:"value" validate:"gt=0"`
	Unit    string    `json:"unit" validate:"required,max=10"`
	TakenAt time.Time `json:"taken_at" validate:"required"`
}

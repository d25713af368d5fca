package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email,omitempty" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AuthToken is the single bearer token a user holds. Created moves forward
// every time the token is refreshed.
type AuthToken struct {
	Key     string    `json:"-" db:"key"`
	UserID  uuid.UUID `json:"user_id" db:"user_id"`
	Created time.Time `json:"created" db:"created"`
}

package models

import "time"

// MinPasswordLength is the shortest password accepted for a user
const MinPasswordLength = 6

// User can pass the login gate. There are no roles.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	// Password is input only and is never persisted
	Password     string    `json:"password,omitempty" validate:"omitempty,min=6"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public returns a copy safe to hand to clients
func (u User) Public() User {
	u.Password = ""
	u.PasswordHash = ""
	return u
}

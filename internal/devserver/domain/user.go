package domain

import "time"

type User struct {
	ID           string
	Username     string
	Email        string // lowercased
	FirstName    string
	LastName     string
	PasswordHash string // argon2id PHC string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

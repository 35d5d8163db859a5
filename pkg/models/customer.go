package models

import "time"

// CustomerInput is the customer block of an order or dedupe request.
type CustomerInput struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Customer is a persisted customer identity. The evaluation path never
// updates an existing row.
type Customer struct {
	ID              string    `json:"id" db:"id"`
	ProjectID       string    `json:"project_id" db:"project_id"`
	Email           string    `json:"email" db:"email"`
	NormalizedEmail string    `json:"normalized_email" db:"normalized_email"`
	Phone           string    `json:"phone" db:"phone"`
	NormalizedPhone string    `json:"normalized_phone" db:"normalized_phone"`
	FirstName       string    `json:"first_name" db:"first_name"`
	LastName        string    `json:"last_name" db:"last_name"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

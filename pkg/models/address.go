package models

import "time"

// Address is a shipping address as submitted by the caller.
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

// AddressRecord is a persisted, normalized address. Rows are immutable.
type AddressRecord struct {
	ID          string    `json:"id" db:"id"`
	ProjectID   string    `json:"project_id" db:"project_id"`
	Line1       string    `json:"line1" db:"line1"`
	Line2       string    `json:"line2" db:"line2"`
	City        string    `json:"city" db:"city"`
	State       string    `json:"state" db:"state"`
	PostalCode  string    `json:"postal_code" db:"postal_code"`
	Country     string    `json:"country" db:"country"`
	AddressHash string    `json:"address_hash" db:"address_hash"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func (r AddressRecord) ToAddress() Address {
	return Address{
		Line1:      r.Line1,
		Line2:      r.Line2,
		City:       r.City,
		State:      r.State,
		PostalCode: r.PostalCode,
		Country:    r.Country,
	}
}

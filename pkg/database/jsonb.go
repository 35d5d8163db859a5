package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB maps a jsonb column onto T. A NULL column leaves Data untouched.
type JSONB[T any] struct {
	Data T
}

func NewJSONB[T any](data T) JSONB[T] { return JSONB[T]{Data: data} }

func (j *JSONB[T]) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("jsonb: cannot scan %T", src)
	}
	if err := json.Unmarshal(raw, &j.Data); err != nil {
		return fmt.Errorf("jsonb: %w", err)
	}
	return nil
}

func (j JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, fmt.Errorf("jsonb: %w", err)
	}
	return b, nil
}

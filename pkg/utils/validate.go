// Package utils holds request binding and validation helpers for handlers.
package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the validate tags of a struct.
func Validate(value any) error {
	if err := validate.Struct(value); err != nil {
		return ValidationErrorToString(err)
	}
	return nil
}

// ValidateValue checks a single value against a tag such as "required,email".
func ValidateValue(value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return ValidationErrorToString(err)
	}
	return nil
}

// ValidationErrorToString flattens validator errors into one readable message.
func ValidationErrorToString(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed '%s=%s'", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return errors.New("invalid request: " + strings.Join(parts, "; "))
}

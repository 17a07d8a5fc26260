package entity

import "errors"

var (
	// ErrNotFound is returned when a claim, employee or rule does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidationInput is returned for malformed claim data
	ErrValidationInput = errors.New("invalid claim input")

	// ErrExternalProvider is returned when an external collaborator is unreachable
	ErrExternalProvider = errors.New("external provider unavailable")
)

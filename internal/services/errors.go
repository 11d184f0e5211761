package services

import "errors"

var (
	// ErrValidation marks input rejected before any side effect
	ErrValidation = errors.New("validation failed")

	// ErrPersistence marks a failed storage or database write
	ErrPersistence = errors.New("failed to persist upload")

	// ErrApplicationNotOwned is returned when an application belongs to another phone number
	ErrApplicationNotOwned = errors.New("application not found")

	// ErrApplicationIncomplete is returned when confirming a draft with missing files
	ErrApplicationIncomplete = errors.New("required documents are missing")

	// ErrNotDraft is returned when changing an application that has left the draft state
	ErrNotDraft = errors.New("application is no longer a draft")
)

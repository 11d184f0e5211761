// Package sms delivers one-time passcodes to applicants.
package sms

import "context"

// Gateway defines the interface for delivering passcodes
type Gateway interface {
	// SendPasscode delivers code to phone (full international number).
	// Returns the provider's message id.
	SendPasscode(ctx context.Context, phone, code string) (string, error)

	// GetName returns the name of the gateway implementation
	GetName() string

	// ExposesCode reports whether the code may be echoed back to the caller,
	// which is only true for development gateways
	ExposesCode() bool
}

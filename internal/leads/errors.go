package leads

import "errors"

var (
	// ErrMissingOrgID is returned when the org id is absent
	ErrMissingOrgID = errors.New("org id is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("either email or phone is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)

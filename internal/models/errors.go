package models

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrClaimConflict      = errors.New("request is already claimed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotEligible        = errors.New("user is not eligible for this service type")
	ErrAutoAssignDisabled = errors.New("auto-assignment is not enabled for this service type")
	ErrNoAvailableAgent   = errors.New("no available agent for this service type")
	ErrClaimChanged       = errors.New("request claim changed")
)

// ValidationError reports a missing or malformed argument. It is raised
// before any backend call is made.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

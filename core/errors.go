package core

import "errors"

// Errors returned by contracts and hosts. Callers match them with errors.Is.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnauthorized     = errors.New("unauthorized operation")
	ErrStorage          = errors.New("storage error")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrContractNotFound = errors.New("contract not found")
	ErrObjectNotFound   = errors.New("object not found")
	ErrFieldNotFound    = errors.New("field not found")
)

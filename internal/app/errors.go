package app

import "fmt"

// DomainError is a caller-visible failure: Status becomes the HTTP
// status, Code the machine-readable error code (WINDOW_CLOSED,
// VALIDATION_ERROR, ALREADY_REPORTED, ...), Details optional structured
// context such as the reopen time on a closed board.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

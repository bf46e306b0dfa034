package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// DomainError carries a stable code of the form PS-<AREA>-<NNNN>. The
// first three digits of NNNN are the HTTP status the error maps to.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

func newError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same code, so sentinels compare
// equal to their WithDetails and WithCause copies.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code
}

// WithDetails returns a copy carrying details, typically the offending id.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// Area returns the AREA part of the code.
func (e *DomainError) Area() string {
	parts := strings.Split(e.Code, "-")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// Status returns the HTTP status encoded in the code, or 500 when the
// code does not encode one.
func (e *DomainError) Status() int {
	i := strings.LastIndexByte(e.Code, '-')
	if i < 0 || len(e.Code)-i-1 != 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(e.Code[i+1 : i+4])
	if err != nil || http.StatusText(n) == "" {
		return http.StatusInternalServerError
	}
	return n
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Location errors.
var (
	ErrLocationNotFound     = newError("PS-LOC-4040", "network location not found")
	ErrInstanceIDRequired   = newError("PS-LOC-4001", "dynamic location requires an instance id")
	ErrInstanceIDMismatch   = newError("PS-LOC-4002", "dynamic location id must equal its instance id")
	ErrBaseURLRequired      = newError("PS-LOC-4003", "base url is required")
	ErrInvalidBaseURL       = newError("PS-LOC-4004", "invalid base url")
	ErrLocationKindConflict = newError("PS-LOC-4090", "location kind cannot change")
)

// ErrPeerUnreachable means the peer did not answer a probe.
var ErrPeerUnreachable = newError("PS-PEER-5030", "peer unreachable")

// System errors are never shown to API clients in detail.
var (
	ErrInternalServer = newError("PS-SYS-5000", "internal server error")
	ErrStorageError   = newError("PS-SYS-5001", "storage error")
)

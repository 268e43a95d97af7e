package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error types for consistent error handling across the shop backend.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrFormat indicates a malformed identifier detected before any network call
// (business ID length/charset, country code).
type ErrFormat struct {
	Field string
	Code  string
}

func (e *ErrFormat) Error() string {
	return fmt.Sprintf("invalid format for '%s': %s", e.Field, e.Code)
}

// ErrRateLimited indicates the local quota for an upstream registry is exhausted.
type ErrRateLimited struct {
	Source     string
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited [%s]: retry after %s", e.Source, e.RetryAfter)
}

// ErrTechnical is a transient infrastructure failure (timeout, network,
// malformed payload, upstream 5xx, authentication after retry). It must never
// drive an automatic approval or rejection.
type ErrTechnical struct {
	Source string
	Reason string
	Err    error
}

func (e *ErrTechnical) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("technical error [%s]: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("technical error [%s]: %s", e.Source, e.Reason)
}

func (e *ErrTechnical) Unwrap() error {
	return e.Err
}

// ErrBusiness is a definitive answer from an upstream registry ("not found",
// "invalid"). Terminal for the check that produced it.
type ErrBusiness struct {
	Source  string
	Code    string
	Message string
}

func (e *ErrBusiness) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Source, e.Code, e.Message)
	}
	return fmt.Sprintf("%s [%s]", e.Source, e.Code)
}

// ErrPrecondition indicates the entity is in the wrong state for the
// requested operation. Nothing is mutated when it is returned.
type ErrPrecondition struct {
	Reason string
}

func (e *ErrPrecondition) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

// ErrMinimumQuantity indicates a professional buyer ordered less than the
// product's minimum quantity.
type ErrMinimumQuantity struct {
	ProductID string
	Minimum   int
	Requested int
}

func (e *ErrMinimumQuantity) Error() string {
	return fmt.Sprintf("minimum quantity for product %s is %d (requested %d)", e.ProductID, e.Minimum, e.Requested)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists or is locked by another
// operation (duplicate email, cart locked by a pending order).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// IsTechnical reports whether err belongs to the transient class that routes
// verification to manual review.
func IsTechnical(err error) bool {
	var te *ErrTechnical
	var rl *ErrRateLimited
	var co *ErrCircuitOpen
	var to *ErrTimeout
	return errors.As(err, &te) || errors.As(err, &rl) || errors.As(err, &co) || errors.As(err, &to)
}

// IsBusiness reports whether err is a definitive upstream answer.
func IsBusiness(err error) bool {
	var be *ErrBusiness
	return errors.As(err, &be)
}

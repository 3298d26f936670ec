package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing means the turn cannot be answered because a
	// tenant config, send credential or routing key is absent.
	ErrConfigurationMissing = errors.New("conversation: configuration missing")
	// ErrUnknownTenant means the routing key matched no tenant.
	ErrUnknownTenant = errors.New("conversation: unknown tenant")
)

// GenerationError is a failed generative fallback call.
type GenerationError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("conversation: generation failed (%s status %d): %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("conversation: generation failed (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// DispatchError is a failed outbound send.
type DispatchError struct {
	Status int
	Body   string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("conversation: dispatch failed (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("conversation: dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// statusCarrier is implemented by transport errors that expose the HTTP
// response of the failed call.
type statusCarrier interface {
	HTTPStatus() int
	ResponseBody() string
}

func newDispatchError(err error) *DispatchError {
	de := &DispatchError{Err: err}
	var sc statusCarrier
	if errors.As(err, &sc) {
		de.Status = sc.HTTPStatus()
		de.Body = sc.ResponseBody()
	}
	return de
}

// errorKind labels an error for logs and metrics.
func errorKind(err error) string {
	var genErr *GenerationError
	var dispErr *DispatchError
	switch {
	case errors.Is(err, ErrUnknownTenant):
		return "unknown_tenant"
	case errors.Is(err, ErrConfigurationMissing):
		return "configuration_missing"
	case errors.As(err, &genErr):
		return "generation_error"
	case errors.As(err, &dispErr):
		return "dispatch_error"
	default:
		return "internal"
	}
}

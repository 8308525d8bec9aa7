package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrMissingRequiredItem = errors.New("missing required item")
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrNotificationChannel = errors.New("notification channel failure")
)

// LimitExceededError is returned when a day plan already holds the maximum
// number of job events for its technician.
type LimitExceededError struct {
	Limit        int
	Requested    int
	TechnicianID string
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("technician %s would have %d jobs, exceeding the daily limit of %d", e.TechnicianID, e.Requested, e.Limit)
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }

type MissingRequiredItemError struct {
	ItemIDs []string
}

func (e *MissingRequiredItemError) Error() string {
	return fmt.Sprintf("required kit items missing without override: %s", strings.Join(e.ItemIDs, ", "))
}

func (e *MissingRequiredItemError) Unwrap() error { return ErrMissingRequiredItem }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ChannelError wraps a single failed delivery attempt. The escalator records
// it on the attempt and moves on; it only reaches callers through logs.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() []error { return []error{ErrNotificationChannel, e.Err} }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

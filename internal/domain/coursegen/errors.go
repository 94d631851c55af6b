package coursegen

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FailureCategory prefixes the error message stored on a failed course so the
// cause can be told apart without parsing free text.
type FailureCategory string

const (
	FailureValidation  FailureCategory = "validation"
	FailureProvider    FailureCategory = "provider"
	FailureQualityGate FailureCategory = "quality_gate"
	FailureStorage     FailureCategory = "storage"
	FailureInternal    FailureCategory = "internal"
)

// ProviderError wraps a failure from an external LLM, embedding or conversion service.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// QualityGateError means a generated summary scored below the fidelity threshold.
type QualityGateError struct {
	FileID    uuid.UUID
	Score     float64
	Threshold float64
	Attempts  int
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("summary for file %s scored %.3f below threshold %.2f after %d attempt(s)", e.FileID, e.Score, e.Threshold, e.Attempts)
}

// InputError reports malformed job input discovered while a handler runs.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// StorageError wraps a failed read or write of durable state inside a handler.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Categorize maps a handler error to the category recorded on the failed course.
func Categorize(err error) FailureCategory {
	var (
		ie *InputError
		qe *QualityGateError
		pe *ProviderError
		se *StorageError
	)
	switch {
	case errors.As(err, &ie):
		return FailureValidation
	case errors.As(err, &qe):
		return FailureQualityGate
	case errors.As(err, &pe):
		return FailureProvider
	case errors.As(err, &se):
		return FailureStorage
	default:
		return FailureInternal
	}
}

// FailureMessage renders the error_message stored on a failed course.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", Categorize(err), err.Error())
}

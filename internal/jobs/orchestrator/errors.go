package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

// ValidationError rejects a submission whose job type or payload is malformed.
type ValidationError struct {
	JobType types.JobType
	Fields  []string
	Err     error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid job")
	if e.JobType != "" {
		fmt.Fprintf(&b, " %s", e.JobType)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, ": invalid fields %s", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DuplicateJobError means a job for the same course and stage is already queued or running.
type DuplicateJobError struct {
	CourseID uuid.UUID
	Stage    types.Stage
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("course %s already has a job in flight for stage %d", e.CourseID, e.Stage)
}

// ConflictError means the course is not in a status that allows the action.
type ConflictError struct {
	CourseID uuid.UUID
	Status   types.Status
	Action   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot %s course %s in status %s", e.Action, e.CourseID, e.Status)
}

// StaleApprovalError means the course already moved past the approved stage.
type StaleApprovalError struct {
	CourseID     uuid.UUID
	Stage        types.Stage
	CurrentStage types.Stage
	Status       types.Status
}

func (e *StaleApprovalError) Error() string {
	return fmt.Sprintf("approval for stage %d of course %s is stale: course is at stage %d (%s)", e.Stage, e.CourseID, e.CurrentStage, e.Status)
}

type NotFoundError struct {
	CourseID uuid.UUID
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("course %s has no generation state", e.CourseID) }

var errMissingHandler = errors.New("no handler registered for job type")

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsDuplicate(err error) bool {
	var de *DuplicateJobError
	return errors.As(err, &de)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsStaleApproval(err error) bool {
	var se *StaleApprovalError
	return errors.As(err, &se)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

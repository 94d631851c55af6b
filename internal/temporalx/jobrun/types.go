package jobrun

import (
	"github.com/google/uuid"
)

const (
	WorkflowName    = "job_run"
	ActivityProcess = "job_run_process"
)

// WorkflowID is the Temporal workflow id for a queued job. Starting it twice is a no-op.
func WorkflowID(jobID uuid.UUID) string {
	return WorkflowName + ":" + jobID.String()
}

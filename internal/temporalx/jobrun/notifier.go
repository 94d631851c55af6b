package jobrun

import (
	"context"
	"errors"

	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
)

// Starter is the part of the Temporal client the notifier needs.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
}

// Notifier starts a job_run workflow for every job the queue stores.
type Notifier struct {
	Client    Starter
	TaskQueue string
}

func (n *Notifier) Notify(ctx context.Context, job *types.GenerationJob) error {
	if n == nil || n.Client == nil || job == nil {
		return nil
	}
	_, err := n.Client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        WorkflowID(job.ID),
		TaskQueue: n.TaskQueue,
	}, WorkflowName, job.ID.String())
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return nil
	}
	return err
}

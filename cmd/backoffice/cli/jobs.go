package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/jobs"
)

// Enqueuer submits a named task with an optional day argument.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType, day string) (*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector jobs.QueueInspector
}

// NewJobsCLI builds the helpers. Either dependency may be nil when the
// command does not need it.
func NewJobsCLI(client Enqueuer, inspector jobs.QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name, day string, out Output) int {
	if c == nil || c.client == nil {
		_, _ = fmt.Fprintln(out.stderr(), "jobs trigger: client not configured")
		return 1
	}
	if name != jobs.TaskStockRecalculate && name != jobs.TaskLedgerRollup {
		_, _ = fmt.Fprintf(out.stderr(), "jobs trigger: unsupported job %q (expected %s or %s)\n", name, jobs.TaskStockRecalculate, jobs.TaskLedgerRollup)
		return 2
	}
	info, err := c.client.Enqueue(ctx, name, day)
	if err != nil {
		_, _ = fmt.Fprintf(out.stderr(), "jobs trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out.stdout(), "enqueued %s id=%s queue=%s\n", name, info.ID, info.Queue)
	return 0
}

// Inspect prints the default queue summary.
func (c *JobsCLI) Inspect(out Output) int {
	health, err := c.inspect()
	if err != nil {
		_, _ = fmt.Fprintf(out.stderr(), "jobs inspect: %v\n", err)
		return 1
	}
	p := out.printer()
	_, _ = p.Fprintf(out.stdout(), "queue %s: pending=%d active=%d retry=%d archived=%d processed_today=%d failed_today=%d\n",
		health.Queue, health.Pending, health.Active, health.Retry, health.Archived, health.Processed, health.Failed)
	return 0
}

func (c *JobsCLI) inspect() (jobs.QueueHealth, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueHealth{}, errors.New("inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return jobs.QueueHealth{}, err
	}
	return jobs.Health(info), nil
}

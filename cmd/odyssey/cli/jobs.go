package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI lets operators start tasks by hand and read queue depth.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
}

// NewJobsCLI connects a client and an inspector to redisAddr.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close closes both connections and joins their errors.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closer := range []io.Closer{c.inspector, c.client} {
		if closer != nil {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// Trigger publishes the named task now. It accepts the short name
// "overdue-sweep" or the full task type.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("cli: no queue client")
	}
	switch name {
	case "overdue-sweep", jobs.TaskInvoiceOverdueSweep:
		return jobs.NewClientWith(c.client, nil).EnqueueOverdueSweep(ctx)
	default:
		return nil, fmt.Errorf("cli: job %q cannot be triggered", name)
	}
}

// QueueStats is a snapshot of the default queue. Processed and Failed
// count today's tasks.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
}

// InspectQueue reads the default queue from redis.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("cli: no queue inspector")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
		stats.Processed = info.Processed
		stats.Failed = info.Failed
	}
	return stats, nil
}

// JobsOptions controls output of the jobs subcommands.
type JobsOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *JobsOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// TriggerCommand runs `jobs trigger <name>` and returns the exit code.
func (c *JobsCLI) TriggerCommand(ctx context.Context, name string, opts JobsOptions) int {
	opts.defaults()
	if name == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "jobs trigger: job name required (overdue-sweep)")
		return 2
	}
	info, err := c.Trigger(ctx, name)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return 0
}

// StatsCommand runs `jobs stats` and returns the exit code.
func (c *JobsCLI) StatsCommand(opts JobsOptions) int {
	opts.defaults()
	stats, err := c.InspectQueue()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED\tPROCESSED\tFAILED")
	_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.Processed, stats.Failed)
	_ = tw.Flush()
	return 0
}

package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quotes/internal/ar"
	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client publishes invoice tasks. It satisfies quotations.InvoiceNotifier.
type Client struct {
	queue   Enqueuer
	metrics *jobmetrics.Metrics
}

// NewClient dials redis through asynq.
func NewClient(redisOpts asynq.RedisClientOpt, metrics *jobmetrics.Metrics) *Client {
	return NewClientWith(asynq.NewClient(redisOpts), metrics)
}

// NewClientWith publishes through queue.
func NewClientWith(queue Enqueuer, metrics *jobmetrics.Metrics) *Client {
	return &Client{queue: queue, metrics: metrics}
}

// InvoiceIssued queues the notification for an invoice created by an approval.
func (c *Client) InvoiceIssued(ctx context.Context, inv *ar.Invoice) error {
	task, err := NewInvoiceIssuedTask(inv)
	if err != nil {
		return err
	}
	_, err = c.publish(ctx, task, asynq.MaxRetry(5), asynq.Timeout(30*time.Second))
	return err
}

// EnqueueOverdueSweep queues a sweep to run now instead of waiting for cron.
func (c *Client) EnqueueOverdueSweep(ctx context.Context) (*asynq.TaskInfo, error) {
	task, err := NewOverdueSweepTask(nil)
	if err != nil {
		return nil, err
	}
	return c.publish(ctx, task, asynq.MaxRetry(3))
}

func (c *Client) publish(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	info, err := c.queue.EnqueueContext(ctx, task, opts...)
	c.metrics.Enqueued(task.Type(), err)
	return info, err
}

// Close closes the underlying queue connection.
func (c *Client) Close() error { return c.queue.Close() }

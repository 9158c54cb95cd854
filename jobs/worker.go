package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Route sends tasks of one type to handle.
type Route struct {
	Task   string
	Handle asynq.HandlerFunc
}

// Schedule enqueues Task on a cron expression, evaluated in UTC.
type Schedule struct {
	Cron string
	Task *asynq.Task
	Opts []asynq.Option
}

// WorkerConfig configures NewWorker. Concurrency defaults to 5.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Routes      []Route
	Schedules   []Schedule
}

// Worker processes the default queue and, when schedules exist, runs the
// asynq scheduler next to it.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	cron   *asynq.Scheduler
	logger *slog.Logger
}

// NewWorker builds the server, routes and scheduler. It fails when a cron
// expression does not parse.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := logOrDefault(cfg.Logger)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	w := &Worker{
		mux:    NewServeMux(cfg.Routes...),
		logger: logger,
	}
	w.srv = asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("task failed",
				slog.String("task", task.Type()),
				slog.Int("retried", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})

	for _, s := range cfg.Schedules {
		if s.Cron == "" || s.Task == nil {
			continue
		}
		if w.cron == nil {
			w.cron = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		}
		if _, err := w.cron.Register(s.Cron, s.Task, s.Opts...); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s %q: %w", s.Task.Type(), s.Cron, err)
		}
	}
	return w, nil
}

// NewServeMux maps each route; routes missing a task type or handler are ignored.
func NewServeMux(routes ...Route) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, r := range routes {
		if r.Task != "" && r.Handle != nil {
			mux.HandleFunc(r.Task, r.Handle)
		}
	}
	return mux
}

// Run starts processing and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.srv == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	if w.cron != nil {
		if err := w.cron.Start(); err != nil {
			w.srv.Shutdown()
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
	}
	w.logger.Info("worker started", slog.Bool("scheduler", w.cron != nil))

	<-ctx.Done()
	if w.cron != nil {
		w.cron.Shutdown()
	}
	w.srv.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

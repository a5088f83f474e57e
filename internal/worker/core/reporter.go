package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// StatusReporter periodically reports a worker's status until stopped.
type StatusReporter struct {
	monitor *Monitor
	status  Status
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewStatusReporter creates a new status reporter for a worker.
func NewStatusReporter(client rueidis.Client, workerType string, logger *zap.Logger) *StatusReporter {
	return &StatusReporter{
		monitor: NewMonitor(client, logger),
		status: Status{
			WorkerID:   uuid.New().String(),
			WorkerType: workerType,
			IsHealthy:  true,
		},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.Named("status_reporter"),
	}
}

// Start begins periodic status reporting.
func (r *StatusReporter) Start(ctx context.Context) {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()

		for {
			if err := r.monitor.ReportStatus(ctx, r.snapshot()); err != nil {
				r.logger.Error("Failed to report status", zap.Error(err))
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends status reporting and waits for the reporting goroutine to exit.
// It must only be called after Start.
func (r *StatusReporter) Stop() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}

// UpdateStatus updates the current task and its progress.
func (r *StatusReporter) UpdateStatus(task string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.CurrentTask = task
	r.status.Progress = progress
}

// SetHealthy updates the health status.
func (r *StatusReporter) SetHealthy(healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.IsHealthy = healthy
}

// GetWorkerID returns the unique worker ID.
func (r *StatusReporter) GetWorkerID() string {
	return r.status.WorkerID
}

func (r *StatusReporter) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

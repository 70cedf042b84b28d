package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Resyncer rewrites every mirrored roster from the live state.
type Resyncer interface {
	Resync(ctx context.Context) (int, error)
}

// PresenceResyncJob periodically rewrites the presence mirror so dropped or
// failed writes heal and TTLs stay fresh.
type PresenceResyncJob struct {
	sink     Resyncer
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewPresenceResyncJob(sink Resyncer, schedule string, logger *zap.Logger) *PresenceResyncJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceResyncJob{
		sink:     sink,
		schedule: schedule,
		timeout:  10 * time.Second,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the job.
func (j *PresenceResyncJob) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Warn("presence resync failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule presence resync: %w", err)
	}
	j.cron.Start()
	j.logger.Info("presence resync started", zap.String("schedule", j.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running resync to finish.
func (j *PresenceResyncJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
		j.logger.Info("presence resync stopped")
	}
}

// RunOnce performs a single resync.
func (j *PresenceResyncJob) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	n, err := j.sink.Resync(ctx)
	if err != nil {
		return 0, err
	}
	j.logger.Debug("presence resynced", zap.Int("rooms", n))
	return n, nil
}

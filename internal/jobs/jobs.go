package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	// Journal entries younger than this may belong to a request in flight
	RecoverMinAge = time.Minute
	// Files younger than this may be an upload not yet journaled
	OrphanGrace = 10 * time.Minute

	runTimeout = 5 * time.Minute
)

// ImageMaintainer is the part of the hero service the cleanup job drives
type ImageMaintainer interface {
	Recover(ctx context.Context, minAge time.Duration) (int, error)
	SweepOrphans(ctx context.Context, grace time.Duration) (int, error)
}

// ImageCleanupJob resolves the image journal and removes orphaned files
type ImageCleanupJob struct {
	images ImageMaintainer
}

func NewImageCleanupJob(images ImageMaintainer) *ImageCleanupJob {
	return &ImageCleanupJob{images: images}
}

// Run implements cron.Job
func (j *ImageCleanupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := j.images.Recover(ctx, RecoverMinAge); err != nil {
		logger.Log.Error("Image journal recovery failed", zap.Error(err))
	}
	if _, err := j.images.SweepOrphans(ctx, OrphanGrace); err != nil {
		logger.Log.Error("Orphan image sweep failed", zap.Error(err))
	}
}

// Scheduler runs the background jobs
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers the image cleanup job on schedule (standard cron
// syntax or descriptors such as "@every 1h").
func NewScheduler(schedule string, images ImageMaintainer) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddJob(schedule, NewImageCleanupJob(images)); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Log.Info("Background jobs started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		logger.Log.Warn("Background jobs still running at shutdown")
	}
}

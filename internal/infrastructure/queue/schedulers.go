package queue

import (
	"encoding/json"
	"time"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/config"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/logger"

	"github.com/hibiken/asynq"
)

type Scheduler struct {
	scheduler *asynq.Scheduler
	jobConfig config.JobsConfig
}

func NewScheduler(redisOpt asynq.RedisClientOpt, jobConfig config.JobsConfig) *Scheduler {
	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
		},
	)

	return &Scheduler{
		scheduler: scheduler,
		jobConfig: jobConfig,
	}
}

func (s *Scheduler) RegisterMaintenanceJobs() error {
	if err := s.registerSweepOrphanBlobsJob(); err != nil {
		return err
	}

	if err := s.registerBackfillIndexesJob(); err != nil {
		return err
	}

	return nil
}

// ================================================
// JOB 1: Sweep Orphan Blobs (default: daily at 3 AM)
// ================================================
// Walks the bucket and deletes blobs whose owning mod, version or
// variant no longer exists in the KV store. Blobs younger than the
// grace period are skipped so an upload in flight is never reaped.
func (s *Scheduler) registerSweepOrphanBlobsJob() error {
	payload, err := json.Marshal(shared.SweepOrphanBlobsPayload{
		DryRun: s.jobConfig.SweepDryRun,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeSweepOrphanBlobs, payload)

	_, err = s.scheduler.Register(
		s.jobConfig.SweepSpec, // "0 3 * * *"
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute), // full bucket walk can be slow
	)

	if err != nil {
		logger.Error("Failed to register SweepOrphanBlobs job", err)
		return err
	}

	logger.Info("✓ Registered SweepOrphanBlobs", map[string]interface{}{
		"spec":   s.jobConfig.SweepSpec,
		"dryRun": s.jobConfig.SweepDryRun,
	})
	return nil
}

// ================================================
// JOB 2: Backfill Indexes (default: daily at 3:30 AM)
// ================================================
// Re-derives the slug and mod indexes from the KV records. The read
// path already self-heals single records on a miss; this job catches
// whatever nobody has asked for yet. Staggered half an hour after the
// sweep so the two never contend.
func (s *Scheduler) registerBackfillIndexesJob() error {
	payload, err := json.Marshal(shared.BackfillIndexesPayload{})
	if err != nil {
		return err
	}

	task := asynq.NewTask(shared.TypeBackfillIndexes, payload)

	_, err = s.scheduler.Register(
		s.jobConfig.BackfillSpec, // "30 3 * * *"
		task,
		asynq.Queue(shared.QueueLow),
		asynq.MaxRetry(2),
		asynq.Timeout(15*time.Minute),
	)

	if err != nil {
		logger.Error("Failed to register BackfillIndexes job", err)
		return err
	}

	logger.Info("✓ Registered BackfillIndexes", map[string]interface{}{
		"spec": s.jobConfig.BackfillSpec,
	})
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Run()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}

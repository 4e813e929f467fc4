package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/events"
	"github.com/deepshark/deepshark-backend/internal/fal"
	"github.com/deepshark/deepshark-backend/internal/models"
)

// Config represents reconciler configuration.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// StalledAfter is how long a job may sit in processing before the
	// reconciler polls the provider for its outcome.
	StalledAfter time.Duration `yaml:"stalled_after"`
	BatchSize    int           `yaml:"batch_size"`
}

// JobStore is the storage surface the reconciler needs.
type JobStore interface {
	ListStalledJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*models.GenerationJob, error)
	CompleteGenerationJob(ctx context.Context, jobID uuid.UUID, imageURL string) error
	FailGenerationJob(ctx context.Context, jobID uuid.UUID) error
	RefundCredits(ctx context.Context, accountID uuid.UUID, amount int, providerTxnID string) (int, error)
}

// QueueClient polls the provider's queue for request outcomes.
type QueueClient interface {
	QueueStatus(ctx context.Context, modelID, requestID string) (*fal.QueueStatusResponse, error)
	QueueResult(ctx context.Context, modelID, requestID string) (*fal.Result, error)
}

// ArtifactFetcher copies provider result media into owned storage.
type ArtifactFetcher interface {
	FetchAndStore(ctx context.Context, remoteURL string) (string, string, error)
}

// Extractor resolves the media URL inside a provider result for a model.
type Extractor interface {
	ExtractMediaURL(modelID string, data map[string]interface{}) (string, error)
}

// Reconciler drives stalled processing jobs to a terminal state by polling
// the provider queue. Pass-through invocations return to the client before
// the provider finishes, so without this loop a crashed or slow request
// would leave its job row processing forever.
type Reconciler struct {
	config    Config
	store     JobStore
	queue     QueueClient
	artifacts ArtifactFetcher
	extractor Extractor
	publisher *events.Publisher
	logger    *zap.Logger
}

// New creates a new reconciler.
func New(
	config Config,
	store JobStore,
	queue QueueClient,
	artifacts ArtifactFetcher,
	extractor Extractor,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = 1 * time.Minute
	}
	if config.StalledAfter <= 0 {
		config.StalledAfter = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	return &Reconciler{
		config:    config,
		store:     store,
		queue:     queue,
		artifacts: artifacts,
		extractor: extractor,
		publisher: publisher,
		logger:    logger.Named("reconciler"),
	}
}

// Run polls for stalled jobs until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("Reconciler started",
		zap.Duration("interval", r.config.Interval),
		zap.Duration("stalled_after", r.config.StalledAfter),
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopped")
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) {
	jobs, err := r.store.ListStalledJobs(ctx, r.config.StalledAfter, r.config.BatchSize)
	if err != nil {
		r.logger.Error("Failed to list stalled jobs", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	r.logger.Debug("Reconciling stalled jobs", zap.Int("count", len(jobs)))
	for _, job := range jobs {
		if err := r.reconcileJob(ctx, job); err != nil {
			r.logger.Warn("Failed to reconcile job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) reconcileJob(ctx context.Context, job *models.GenerationJob) error {
	// Jobs without a provider request id can never be resolved against the
	// queue; fail them so they stop surfacing every cycle. The original
	// charge stands because the outcome is unknowable.
	if job.ProviderRequestID == nil || *job.ProviderRequestID == "" {
		r.logger.Warn("Stalled job has no provider request id, marking failed",
			zap.String("job_id", job.ID.String()))
		return r.store.FailGenerationJob(ctx, job.ID)
	}

	status, err := r.queue.QueueStatus(ctx, job.Model, *job.ProviderRequestID)
	if err != nil {
		return err
	}

	switch status.Status {
	case "COMPLETED":
		return r.completeJob(ctx, job)
	case "IN_QUEUE", "IN_PROGRESS":
		// Still running upstream; leave it for the next cycle.
		return nil
	default:
		return r.failJob(ctx, job, status.Status)
	}
}

func (r *Reconciler) completeJob(ctx context.Context, job *models.GenerationJob) error {
	result, err := r.queue.QueueResult(ctx, job.Model, *job.ProviderRequestID)
	if err != nil {
		return err
	}

	remoteURL, err := r.extractor.ExtractMediaURL(job.Model, result.Data)
	if err != nil {
		r.logger.Warn("Completed job result has no media",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return r.failJob(ctx, job, "no-media")
	}

	_, mediaURL, err := r.artifacts.FetchAndStore(ctx, remoteURL)
	if err != nil {
		return err
	}

	if err := r.store.CompleteGenerationJob(ctx, job.ID, mediaURL); err != nil {
		return err
	}

	r.logger.Info("Stalled job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("model", job.Model),
	)

	r.publisher.Publish(events.SubjectGenerationCompleted, &events.GenerationEvent{
		JobID:     job.ID,
		AccountID: job.AccountID,
		Model:     job.Model,
		Cost:      job.Cost,
		ImageURL:  mediaURL,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (r *Reconciler) failJob(ctx context.Context, job *models.GenerationJob, reason string) error {
	if err := r.store.FailGenerationJob(ctx, job.ID); err != nil {
		return err
	}

	if job.Cost > 0 {
		reference := "refund-reconcile-" + reason
		if _, err := r.store.RefundCredits(ctx, job.AccountID, job.Cost, reference); err != nil {
			r.logger.Error("REFUND FAILED for reconciled job",
				zap.String("job_id", job.ID.String()),
				zap.String("account_id", job.AccountID.String()),
				zap.Int("credits", job.Cost),
				zap.Error(err),
			)
		} else {
			r.publisher.Publish(events.SubjectCreditRefunded, &events.RefundEvent{
				AccountID: job.AccountID,
				Credits:   job.Cost,
				Reference: reference,
				Timestamp: time.Now().UTC(),
			})
		}
	}

	r.logger.Info("Stalled job failed",
		zap.String("job_id", job.ID.String()),
		zap.String("model", job.Model),
		zap.String("reason", reason),
	)

	r.publisher.Publish(events.SubjectGenerationFailed, &events.GenerationEvent{
		JobID:     job.ID,
		AccountID: job.AccountID,
		Model:     job.Model,
		Cost:      job.Cost,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

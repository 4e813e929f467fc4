package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/fal"
	"github.com/deepshark/deepshark-backend/internal/models"
)

type fakeJobStore struct {
	stalled   []*models.GenerationJob
	completed map[uuid.UUID]string
	failed    map[uuid.UUID]bool
	refunds   map[uuid.UUID]int
}

func newFakeJobStore(jobs ...*models.GenerationJob) *fakeJobStore {
	return &fakeJobStore{
		stalled:   jobs,
		completed: make(map[uuid.UUID]string),
		failed:    make(map[uuid.UUID]bool),
		refunds:   make(map[uuid.UUID]int),
	}
}

func (s *fakeJobStore) ListStalledJobs(_ context.Context, _ time.Duration, _ int) ([]*models.GenerationJob, error) {
	return s.stalled, nil
}

func (s *fakeJobStore) CompleteGenerationJob(_ context.Context, jobID uuid.UUID, imageURL string) error {
	s.completed[jobID] = imageURL
	return nil
}

func (s *fakeJobStore) FailGenerationJob(_ context.Context, jobID uuid.UUID) error {
	s.failed[jobID] = true
	return nil
}

func (s *fakeJobStore) RefundCredits(_ context.Context, accountID uuid.UUID, amount int, _ string) (int, error) {
	s.refunds[accountID] += amount
	return s.refunds[accountID], nil
}

type fakeQueue struct {
	status string
	result *fal.Result
}

func (q *fakeQueue) QueueStatus(_ context.Context, _, requestID string) (*fal.QueueStatusResponse, error) {
	return &fal.QueueStatusResponse{Status: q.status, RequestID: requestID}, nil
}

func (q *fakeQueue) QueueResult(_ context.Context, _, requestID string) (*fal.Result, error) {
	return q.result, nil
}

type fakeFetcher struct{}

func (fakeFetcher) FetchAndStore(_ context.Context, _ string) (string, string, error) {
	return "key", "https://media.deepshark.app/key.png", nil
}

type fakeExtractor struct{ url string }

func (e fakeExtractor) ExtractMediaURL(_ string, _ map[string]interface{}) (string, error) {
	return e.url, nil
}

func stalledJob(cost int) *models.GenerationJob {
	requestID := "req-1"
	return &models.GenerationJob{
		ID:                uuid.New(),
		AccountID:         uuid.New(),
		Model:             "fal-ai/kling-video",
		Cost:              cost,
		Status:            models.JobStatusProcessing,
		ProviderRequestID: &requestID,
	}
}

func TestReconcileCompletesFinishedJob(t *testing.T) {
	job := stalledJob(45)
	store := newFakeJobStore(job)
	queue := &fakeQueue{
		status: "COMPLETED",
		result: &fal.Result{Data: map[string]interface{}{}},
	}

	r := New(Config{}, store, queue, fakeFetcher{}, fakeExtractor{url: "https://provider.example/out.mp4"}, nil, zap.NewNop())
	r.reconcileOnce(context.Background())

	if store.completed[job.ID] != "https://media.deepshark.app/key.png" {
		t.Errorf("completed = %v", store.completed)
	}
	if store.failed[job.ID] {
		t.Error("completed job must not be failed")
	}
	if store.refunds[job.AccountID] != 0 {
		t.Error("completed job must not be refunded")
	}
}

func TestReconcileFailsAndRefundsFailedJob(t *testing.T) {
	job := stalledJob(45)
	store := newFakeJobStore(job)
	queue := &fakeQueue{status: "FAILED"}

	r := New(Config{}, store, queue, fakeFetcher{}, fakeExtractor{}, nil, zap.NewNop())
	r.reconcileOnce(context.Background())

	if !store.failed[job.ID] {
		t.Error("failed job must be marked failed")
	}
	if store.refunds[job.AccountID] != 45 {
		t.Errorf("refund = %d, want 45", store.refunds[job.AccountID])
	}
}

func TestReconcileLeavesRunningJob(t *testing.T) {
	job := stalledJob(45)
	store := newFakeJobStore(job)
	queue := &fakeQueue{status: "IN_PROGRESS"}

	r := New(Config{}, store, queue, fakeFetcher{}, fakeExtractor{}, nil, zap.NewNop())
	r.reconcileOnce(context.Background())

	if store.failed[job.ID] || len(store.completed) != 0 {
		t.Error("in-progress job must stay processing")
	}
}

func TestReconcileFailsJobWithoutRequestID(t *testing.T) {
	job := stalledJob(0)
	job.ProviderRequestID = nil
	store := newFakeJobStore(job)

	r := New(Config{}, store, &fakeQueue{}, fakeFetcher{}, fakeExtractor{}, nil, zap.NewNop())
	r.reconcileOnce(context.Background())

	if !store.failed[job.ID] {
		t.Error("unresolvable job must be marked failed")
	}
	if store.refunds[job.AccountID] != 0 {
		t.Error("zero-cost job must not be refunded")
	}
}

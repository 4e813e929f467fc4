package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/catalog"
	"github.com/deepshark/deepshark-backend/internal/events"
	"github.com/deepshark/deepshark-backend/internal/fal"
	"github.com/deepshark/deepshark-backend/internal/models"
)

// LedgerStore is the storage surface the invocation service needs.
type LedgerStore interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	DebitCredits(ctx context.Context, accountID uuid.UUID, amount int) (int, error)
	RefundCredits(ctx context.Context, accountID uuid.UUID, amount int, providerTxnID string) (int, error)
	CreateGenerationJob(ctx context.Context, job *models.GenerationJob) error
	ListGenerationJobs(ctx context.Context, req *models.GenerationHistoryRequest) ([]*models.GenerationJob, error)
}

// Gateway invokes models on the external generation provider.
type Gateway interface {
	Run(ctx context.Context, modelID string, payload map[string]interface{}) (*fal.Result, error)
}

// ArtifactFetcher copies provider result media into owned storage.
type ArtifactFetcher interface {
	FetchAndStore(ctx context.Context, remoteURL string) (string, string, error)
}

// InvocationService executes metered model invocations: debit, call the
// provider, persist the artifact and job row, refund on failure.
type InvocationService struct {
	store     LedgerStore
	catalog   *catalog.Catalog
	gateway   Gateway
	artifacts ArtifactFetcher
	publisher *events.Publisher
	logger    *zap.Logger
}

// InvokeRequest is one synchronous tool invocation.
type InvokeRequest struct {
	AccountID uuid.UUID
	Tool      string
	ModelID   string
	Input     catalog.Input
}

// InvokeResult is the outcome of a successful invocation.
type InvokeResult struct {
	JobID            uuid.UUID
	MediaURL         string
	Cost             int
	RemainingCredits int
}

// ProxyCharge is the record of a debit taken before a pass-through provider
// call. The proxy handler refunds it if the upstream call fails.
type ProxyCharge struct {
	AccountID uuid.UUID
	Model     string
	Cost      int
	Prompt    string
	Balance   int
}

// NewInvocationService creates a new invocation service.
func NewInvocationService(
	store LedgerStore,
	cat *catalog.Catalog,
	gateway Gateway,
	artifacts ArtifactFetcher,
	publisher *events.Publisher,
	logger *zap.Logger,
) *InvocationService {
	return &InvocationService{
		store:     store,
		catalog:   cat,
		gateway:   gateway,
		artifacts: artifacts,
		publisher: publisher,
		logger:    logger.Named("invocation_service"),
	}
}

// Invoke runs one metered generation end to end. The payload is validated
// and adapted before any credits move; once the debit lands, every failure
// path refunds the exact debited amount.
func (s *InvocationService) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	entry, err := s.catalog.Resolve(req.Tool, req.ModelID)
	if err != nil {
		return nil, err
	}

	// Adapt first: a malformed payload must be rejected before the debit.
	payload, err := entry.Adapt(req.Input)
	if err != nil {
		return nil, err
	}

	cost := entry.Cost(req.Input)

	balance, err := s.store.DebitCredits(ctx, req.AccountID, cost)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) {
			account, getErr := s.store.GetAccount(ctx, req.AccountID)
			available := 0
			if getErr == nil {
				available = account.Credits
			}
			return nil, models.NewInsufficientCreditsError(cost, available)
		}
		return nil, err
	}

	s.logger.Info("Invocation debited",
		zap.String("account_id", req.AccountID.String()),
		zap.String("model", entry.ID),
		zap.Int("cost", cost),
		zap.Int("balance", balance),
	)

	result, err := s.gateway.Run(ctx, entry.ID, payload)
	if err != nil {
		return nil, s.refundAndFail(ctx, req.AccountID, entry.ID, cost, err)
	}

	remoteURL, err := entry.Extract(result.Data)
	if err != nil {
		return nil, s.refundAndFail(ctx, req.AccountID, entry.ID, cost, err)
	}

	_, mediaURL, err := s.artifacts.FetchAndStore(ctx, remoteURL)
	if err != nil {
		return nil, s.refundAndFail(ctx, req.AccountID, entry.ID, cost, err)
	}

	job := &models.GenerationJob{
		AccountID: req.AccountID,
		Prompt:    promptOf(req.Input),
		Model:     entry.ID,
		ImageURL:  &mediaURL,
		Cost:      cost,
		Status:    models.JobStatusCompleted,
	}
	if result.RequestID != "" {
		job.ProviderRequestID = &result.RequestID
	}
	if err := s.store.CreateGenerationJob(ctx, job); err != nil {
		// The charge is honest (the user got their media), so no refund; the
		// missing log row is an operational problem, not a billing one.
		s.logger.Error("Failed to record completed generation", zap.Error(err),
			zap.String("account_id", req.AccountID.String()))
	}

	s.publisher.Publish(events.SubjectGenerationCompleted, &events.GenerationEvent{
		JobID:     job.ID,
		AccountID: req.AccountID,
		Model:     entry.ID,
		Cost:      cost,
		ImageURL:  mediaURL,
		Timestamp: time.Now().UTC(),
	})

	return &InvokeResult{
		JobID:            job.ID,
		MediaURL:         mediaURL,
		Cost:             cost,
		RemainingCredits: balance,
	}, nil
}

// refundAndFail re-credits the debited amount after a post-debit failure and
// returns the client-facing provider error.
func (s *InvocationService) refundAndFail(ctx context.Context, accountID uuid.UUID, modelID string, cost int, cause error) error {
	reference := refundReference(cause)

	if _, refundErr := s.store.RefundCredits(ctx, accountID, cost, reference); refundErr != nil {
		// A failed refund means the user paid for nothing. Loud log so it can
		// be replayed by hand; the original failure still reaches the client.
		s.logger.Error("REFUND FAILED after generation failure",
			zap.String("account_id", accountID.String()),
			zap.String("model", modelID),
			zap.Int("credits", cost),
			zap.Error(refundErr),
		)
	} else {
		s.publisher.Publish(events.SubjectCreditRefunded, &events.RefundEvent{
			AccountID: accountID,
			Credits:   cost,
			Reference: reference,
			Timestamp: time.Now().UTC(),
		})
	}

	s.logger.Warn("Generation failed, charge refunded",
		zap.String("account_id", accountID.String()),
		zap.String("model", modelID),
		zap.Error(cause),
	)

	var svcErr *models.ServiceError
	if errors.As(cause, &svcErr) {
		return svcErr
	}
	return models.NewProviderFailureError(modelID, cause)
}

// ReserveProxyCharge prices and debits a pass-through provider call. Unknown
// target models price at zero rather than blocking the request; that case is
// logged for catalog follow-up.
func (s *InvocationService) ReserveProxyCharge(ctx context.Context, accountID uuid.UUID, targetURL string, input catalog.Input) (*ProxyCharge, error) {
	charge := &ProxyCharge{
		AccountID: accountID,
		Prompt:    promptOf(input),
	}

	entry, ok := s.catalog.MatchTargetURL(targetURL)
	if ok {
		charge.Model = entry.ID
		charge.Cost = entry.Cost(input)
	} else {
		charge.Model = targetURL
		s.logger.Warn("Proxy target did not match any priced model",
			zap.String("target_url", targetURL),
			zap.String("account_id", accountID.String()),
		)
	}

	balance, err := s.store.DebitCredits(ctx, accountID, charge.Cost)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) {
			account, getErr := s.store.GetAccount(ctx, accountID)
			available := 0
			if getErr == nil {
				available = account.Credits
			}
			return nil, models.NewInsufficientCreditsError(charge.Cost, available)
		}
		return nil, err
	}
	charge.Balance = balance

	return charge, nil
}

// RefundProxyCharge re-credits a proxy debit after the upstream call failed
// with the given status.
func (s *InvocationService) RefundProxyCharge(ctx context.Context, charge *ProxyCharge, upstreamStatus int) {
	if charge.Cost == 0 {
		return
	}

	reference := fmt.Sprintf("refund-fal-%d", upstreamStatus)
	if _, err := s.store.RefundCredits(ctx, charge.AccountID, charge.Cost, reference); err != nil {
		s.logger.Error("REFUND FAILED after proxy failure",
			zap.String("account_id", charge.AccountID.String()),
			zap.Int("credits", charge.Cost),
			zap.Int("upstream_status", upstreamStatus),
			zap.Error(err),
		)
		return
	}

	s.publisher.Publish(events.SubjectCreditRefunded, &events.RefundEvent{
		AccountID: charge.AccountID,
		Credits:   charge.Cost,
		Reference: reference,
		Timestamp: time.Now().UTC(),
	})
}

// LogProxyJob records a pass-through invocation as a processing job carrying
// the provider request id, so the reconciler can later resolve it.
func (s *InvocationService) LogProxyJob(ctx context.Context, charge *ProxyCharge, providerRequestID string) {
	job := &models.GenerationJob{
		AccountID: charge.AccountID,
		Prompt:    charge.Prompt,
		Model:     charge.Model,
		Cost:      charge.Cost,
		Status:    models.JobStatusProcessing,
	}
	if providerRequestID != "" {
		job.ProviderRequestID = &providerRequestID
	}

	if err := s.store.CreateGenerationJob(ctx, job); err != nil {
		s.logger.Error("Failed to record proxy generation job",
			zap.String("account_id", charge.AccountID.String()),
			zap.String("model", charge.Model),
			zap.Error(err),
		)
	}
}

// History returns an account's generation history, newest first.
func (s *InvocationService) History(ctx context.Context, req *models.GenerationHistoryRequest) ([]*models.GenerationJob, error) {
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}
	return s.store.ListGenerationJobs(ctx, req)
}

func refundReference(cause error) string {
	var provErr *fal.ProviderError
	if errors.As(cause, &provErr) {
		return fmt.Sprintf("refund-fal-%d", provErr.StatusCode)
	}
	return "refund-failed"
}

func promptOf(input catalog.Input) string {
	if input == nil {
		return ""
	}
	if prompt, ok := input["prompt"].(string); ok {
		return prompt
	}
	return ""
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/catalog"
	"github.com/deepshark/deepshark-backend/internal/fal"
	"github.com/deepshark/deepshark-backend/internal/middleware"
	"github.com/deepshark/deepshark-backend/internal/models"
	"github.com/deepshark/deepshark-backend/internal/service"
)

type stubStore struct {
	balance int
	jobs    []*models.GenerationJob
	refunds int
}

func (s *stubStore) GetAccount(_ context.Context, accountID uuid.UUID) (*models.Account, error) {
	return &models.Account{ID: accountID, Credits: s.balance}, nil
}

func (s *stubStore) DebitCredits(_ context.Context, _ uuid.UUID, amount int) (int, error) {
	if s.balance < amount {
		return 0, models.ErrInsufficientCredits
	}
	s.balance -= amount
	return s.balance, nil
}

func (s *stubStore) RefundCredits(_ context.Context, _ uuid.UUID, amount int, _ string) (int, error) {
	s.balance += amount
	s.refunds++
	return s.balance, nil
}

func (s *stubStore) CreateGenerationJob(_ context.Context, job *models.GenerationJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubStore) ListGenerationJobs(_ context.Context, _ *models.GenerationHistoryRequest) ([]*models.GenerationJob, error) {
	return s.jobs, nil
}

type stubGateway struct{ err error }

func (g *stubGateway) Run(_ context.Context, _ string, _ map[string]interface{}) (*fal.Result, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &fal.Result{Data: map[string]interface{}{
		"image": map[string]interface{}{"url": "https://provider.example/out.png"},
	}}, nil
}

type stubFetcher struct{}

func (stubFetcher) FetchAndStore(_ context.Context, _ string) (string, string, error) {
	return "key", "https://media.deepshark.app/key.png", nil
}

func generateRequest(t *testing.T, tool string, body map[string]interface{}, accountID uuid.UUID) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate/"+tool, bytes.NewReader(payload))
	return req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyAccountID, accountID))
}

func newGenerateRouter(store *stubStore, gateway *stubGateway) chi.Router {
	svc := service.NewInvocationService(
		store, catalog.New(nil, zap.NewNop()), gateway, stubFetcher{}, nil, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/api/generate/{tool}", Generate(svc, zap.NewNop()))
	return r
}

func TestGenerateSuccess(t *testing.T) {
	store := &stubStore{balance: 10}
	router := newGenerateRouter(store, &stubGateway{})

	req := generateRequest(t, "generate", map[string]interface{}{
		"model":  "fal-ai/gpt-image-1.5",
		"prompt": "a shark",
	}, uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.ImageURL != "https://media.deepshark.app/key.png" {
		t.Errorf("response = %+v", resp)
	}
	if resp.RemainingCredits != 8 {
		t.Errorf("remaining credits = %d, want 8", resp.RemainingCredits)
	}
}

func TestGenerateInsufficientCreditsIs402(t *testing.T) {
	store := &stubStore{balance: 1}
	router := newGenerateRouter(store, &stubGateway{})

	req := generateRequest(t, "generate", map[string]interface{}{
		"model":  "fal-ai/gpt-image-1.5",
		"prompt": "a shark",
	}, uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if store.balance != 1 {
		t.Errorf("balance = %d, want 1 (unchanged)", store.balance)
	}
}

func TestGenerateUnknownModelIs400(t *testing.T) {
	router := newGenerateRouter(&stubStore{balance: 10}, &stubGateway{})

	req := generateRequest(t, "generate", map[string]interface{}{
		"model":  "no-such-model",
		"prompt": "a shark",
	}, uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateProviderFailureIs502AndRefunds(t *testing.T) {
	store := &stubStore{balance: 10}
	router := newGenerateRouter(store, &stubGateway{err: &fal.ProviderError{StatusCode: 500, Message: "boom"}})

	req := generateRequest(t, "generate", map[string]interface{}{
		"model":  "fal-ai/gpt-image-1.5",
		"prompt": "a shark",
	}, uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if store.balance != 10 || store.refunds != 1 {
		t.Errorf("balance = %d refunds = %d, want refunded once", store.balance, store.refunds)
	}
}

func TestGenerateMissingAuthIs401(t *testing.T) {
	router := newGenerateRouter(&stubStore{balance: 10}, &stubGateway{})

	payload, _ := json.Marshal(map[string]interface{}{"prompt": "a shark"})
	req := httptest.NewRequest(http.MethodPost, "/api/generate/generate", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

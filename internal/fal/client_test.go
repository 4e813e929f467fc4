package fal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(&Config{BaseURL: baseURL, QueueURL: baseURL, APIKey: "secret"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestRunSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fal-ai/flux-dev" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Key secret" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("X-Fal-Request-Id", "req-42")
		w.Write([]byte(`{"images":[{"url":"https://cdn.example.com/a.png"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Run(context.Background(), "fal-ai/flux-dev", map[string]interface{}{"prompt": "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.RequestID != "req-42" {
		t.Errorf("request id = %q", result.RequestID)
	}
	if _, ok := result.Data["images"]; !ok {
		t.Error("response data missing images")
	}
}

func TestRunUpstreamErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Run(context.Background(), "fal-ai/flux-dev", nil)

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if provErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", provErr.StatusCode)
	}
}

func TestQueueStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fal-ai/kling-video/requests/req-1/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"status":"COMPLETED","request_id":"req-1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	status, err := client.QueueStatus(context.Background(), "fal-ai/kling-video", "req-1")
	if err != nil {
		t.Fatalf("QueueStatus failed: %v", err)
	}
	if status.Status != "COMPLETED" {
		t.Errorf("status = %q", status.Status)
	}
}

func TestAllowedTarget(t *testing.T) {
	client, err := NewClient(&Config{
		BaseURL:  "https://fal.run",
		QueueURL: "https://queue.fal.run",
		APIKey:   "secret",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	cases := []struct {
		target string
		want   bool
	}{
		{"https://fal.run/fal-ai/flux-dev", true},
		{"https://queue.fal.run/fal-ai/kling-video", true},
		{"http://fal.run/fal-ai/flux-dev", false},
		{"https://evil.example.com/fal-ai/flux-dev", false},
		{"https://fal.run.evil.example.com/x", false},
		{"not a url", false},
	}
	for _, tc := range cases {
		if got := client.AllowedTarget(tc.target); got != tc.want {
			t.Errorf("AllowedTarget(%q) = %v, want %v", tc.target, got, tc.want)
		}
	}
}

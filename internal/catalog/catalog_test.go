package catalog

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/models"
)

func newTestCatalog(t *testing.T, cfg *Config) *Catalog {
	t.Helper()
	return New(cfg, zap.NewNop())
}

func TestFlatCosts(t *testing.T) {
	c := newTestCatalog(t, nil)

	cases := map[string]int{
		"fal-ai/gpt-image-1.5":         2,
		"fal-ai/gpt-image-1.5/edit":    3,
		"seedream-v4":                  3,
		"flux-dev":                     7,
		"recraft-v3":                   4,
		"minimax-image-01":             1,
		"ideogram-v3":                  8,
		"luma-photon":                  2,
		"fal-ai/bria/background/remove": 2,
		"fal-ai/flux-lora/inpainting":  8,
		"fal-ai/clarity-upscaler":      2,
		"fal-ai/topaz/upscale/image":   2,
		"fal-ai/seedvr/upscale/image":  2,
		"fal-ai/image-editing/realism": 2,
		"fal-ai/wills-voice":           10,
	}
	for modelID, want := range cases {
		if got := c.CostFor(modelID, nil); got != want {
			t.Errorf("CostFor(%q) = %d, want %d", modelID, got, want)
		}
	}
}

func TestCostForUnknownModelIsZero(t *testing.T) {
	c := newTestCatalog(t, nil)
	if got := c.CostFor("fal-ai/does-not-exist", nil); got != 0 {
		t.Fatalf("CostFor(unknown) = %d, want 0", got)
	}
}

func TestCostOverrides(t *testing.T) {
	c := newTestCatalog(t, &Config{ModelCosts: map[string]int{"flux-dev": 3}})
	if got := c.CostFor("flux-dev", nil); got != 3 {
		t.Fatalf("CostFor(flux-dev) with override = %d, want 3", got)
	}
}

func TestVideoCostSurcharge(t *testing.T) {
	c := newTestCatalog(t, nil)

	cases := []struct {
		model    string
		duration float64
		want     int
	}{
		{"fal-ai/luma-dream-machine", 0, 50},
		{"fal-ai/luma-dream-machine", 5, 50},
		{"fal-ai/luma-dream-machine", 10, 90}, // 50 + 5 extra seconds * 8
		{"fal-ai/kling-video", 5, 45},
		{"fal-ai/kling-video", 6, 53},
	}
	for _, tc := range cases {
		input := Input{"duration": tc.duration}
		if got := c.CostFor(tc.model, input); got != tc.want {
			t.Errorf("CostFor(%q, duration=%v) = %d, want %d", tc.model, tc.duration, got, tc.want)
		}
	}
}

func TestResolveUnknownModel(t *testing.T) {
	c := newTestCatalog(t, nil)

	if _, err := c.Resolve(ToolGenerate, "nope"); err == nil {
		t.Fatal("expected error for unknown model")
	}
	if _, err := c.Resolve("no-such-tool", ""); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	// Multi-model tools require an explicit model id.
	if _, err := c.Resolve(ToolGenerate, ""); err == nil {
		t.Fatal("expected error for missing model id on multi-model tool")
	}
}

func TestResolveSingleModelTool(t *testing.T) {
	c := newTestCatalog(t, nil)

	entry, err := c.Resolve(ToolBgRemove, "")
	if err != nil {
		t.Fatalf("Resolve(bg-remove) failed: %v", err)
	}
	if entry.ID != "fal-ai/bria/background/remove" {
		t.Fatalf("Resolve(bg-remove) = %q", entry.ID)
	}
}

func TestResolveRejectsCrossToolModel(t *testing.T) {
	c := newTestCatalog(t, nil)
	if _, err := c.Resolve(ToolUpscale, "flux-dev"); err == nil {
		t.Fatal("expected error resolving a generate model under upscale")
	}
}

func TestAdaptRejectsMissingPrompt(t *testing.T) {
	c := newTestCatalog(t, nil)

	entry, err := c.Resolve(ToolGenerate, "flux-dev")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	_, err = entry.Adapt(Input{})
	var svcErr *models.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Code != models.ErrCodeMissingInput {
		t.Fatalf("Adapt(empty) = %v, want MISSING_INPUT", err)
	}
	if svcErr.Message != "No prompt provided" {
		t.Fatalf("message = %q", svcErr.Message)
	}
}

func TestAngleAdapterMath(t *testing.T) {
	c := newTestCatalog(t, nil)

	entry, err := c.Resolve(ToolAngleChange, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	payload, err := entry.Adapt(Input{
		"image_url": "https://example.com/in.png",
		"yaw":       float64(-90),
		"pitch":     float64(45),
		"zoom":      float64(30),
	})
	if err != nil {
		t.Fatalf("Adapt failed: %v", err)
	}

	if got := payload["rotate_right_left"].(float64); got != -90 {
		t.Errorf("rotate_right_left = %v, want -90", got)
	}
	if got := payload["vertical_angle"].(float64); got != 0.5 {
		t.Errorf("vertical_angle = %v, want 0.5", got)
	}
	if got := payload["move_forward"].(float64); got != 3 {
		t.Errorf("move_forward = %v, want 3", got)
	}
}

func TestMatchTargetURL(t *testing.T) {
	c := newTestCatalog(t, nil)

	cases := []struct {
		target string
		wantID string
		match  bool
	}{
		{"https://fal.run/fal-ai/gpt-image-1.5", "fal-ai/gpt-image-1.5", true},
		{"https://fal.run/fal-ai/gpt-image-1.5/edit", "fal-ai/gpt-image-1.5/edit", true},
		{"https://queue.fal.run/fal-ai/kling-video/", "fal-ai/kling-video", true},
		{"https://fal.run/fal-ai/topaz/Upscale/image", "fal-ai/topaz/upscale/image", true},
		{"https://fal.run/fal-ai/unknown-model", "", false},
	}
	for _, tc := range cases {
		entry, ok := c.MatchTargetURL(tc.target)
		if ok != tc.match {
			t.Errorf("MatchTargetURL(%q) matched=%v, want %v", tc.target, ok, tc.match)
			continue
		}
		if ok && entry.ID != tc.wantID {
			t.Errorf("MatchTargetURL(%q) = %q, want %q", tc.target, entry.ID, tc.wantID)
		}
	}
}

func TestExtractImageShapes(t *testing.T) {
	single := map[string]interface{}{
		"image": map[string]interface{}{"url": "https://cdn.example.com/a.png"},
	}
	listed := map[string]interface{}{
		"images": []interface{}{map[string]interface{}{"url": "https://cdn.example.com/b.png"}},
	}

	if url, err := extractImage(single); err != nil || url != "https://cdn.example.com/a.png" {
		t.Fatalf("extractImage(single) = %q, %v", url, err)
	}
	if url, err := extractImage(listed); err != nil || url != "https://cdn.example.com/b.png" {
		t.Fatalf("extractImage(listed) = %q, %v", url, err)
	}
	if _, err := extractImage(map[string]interface{}{}); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestExtractMediaURLUnknownModel(t *testing.T) {
	c := newTestCatalog(t, nil)
	if _, err := c.ExtractMediaURL("nope", nil); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

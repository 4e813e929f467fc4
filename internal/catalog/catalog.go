package catalog

import (
	"strings"

	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/models"
)

// Input is the raw, client-supplied generation payload.
type Input map[string]interface{}

// CostFn computes the credit cost of one invocation from its input.
type CostFn func(input Input) int

// AdapterFn transforms the client input into the provider-native payload.
// It returns a MissingInput error when a required field is absent, before
// any credits move.
type AdapterFn func(input Input) (map[string]interface{}, error)

// ExtractFn pulls the primary media URL out of a provider response payload.
type ExtractFn func(data map[string]interface{}) (string, error)

// Entry describes one provider model: what it costs, how to shape its
// payload, and how to read its result. Every invocation path consumes this
// table; model-specific logic lives nowhere else.
type Entry struct {
	ID      string
	Tool    string
	Aliases []string
	Cost    CostFn
	Adapt   AdapterFn
	Extract ExtractFn
}

// Config represents catalog pricing overrides.
type Config struct {
	// Flat per-model cost overrides, keyed by provider model id.
	ModelCosts map[string]int `yaml:"model_costs"`
	// Duration-based surcharge for video models.
	Video VideoPricing `yaml:"video"`
}

// VideoPricing prices video models as a base fee plus a per-second
// surcharge beyond an included allotment.
type VideoPricing struct {
	IncludedSeconds int `yaml:"included_seconds"`
	PerExtraSecond  int `yaml:"per_extra_second"`
}

// Catalog is the declarative model table.
type Catalog struct {
	logger  *zap.Logger
	entries map[string]*Entry
	byTool  map[string][]*Entry
}

// Tool names exposed on the generate route.
const (
	ToolGenerate    = "generate"
	ToolBgRemove    = "bg-remove"
	ToolInpaint     = "inpaint"
	ToolUpscale     = "upscale"
	ToolSkinEnhance = "skin-enhance"
	ToolAngleChange = "angle-change"
)

// New builds the catalog with built-in defaults, applying any configured
// cost overrides.
func New(cfg *Config, logger *zap.Logger) *Catalog {
	c := &Catalog{
		logger:  logger,
		entries: make(map[string]*Entry),
		byTool:  make(map[string][]*Entry),
	}

	video := VideoPricing{IncludedSeconds: 5, PerExtraSecond: 8}
	if cfg != nil && cfg.Video.PerExtraSecond > 0 {
		video = cfg.Video
	}

	for _, e := range defaultEntries(video) {
		c.register(e)
	}

	if cfg != nil {
		for modelID, cost := range cfg.ModelCosts {
			if entry, ok := c.entries[strings.ToLower(modelID)]; ok {
				entry.Cost = flatCost(cost)
			} else {
				logger.Warn("Cost override for unknown model ignored", zap.String("model_id", modelID))
			}
		}
	}

	return c
}

func (c *Catalog) register(e *Entry) {
	c.entries[strings.ToLower(e.ID)] = e
	for _, alias := range e.Aliases {
		c.entries[strings.ToLower(alias)] = e
	}
	if e.Tool != "" {
		c.byTool[e.Tool] = append(c.byTool[e.Tool], e)
	}
}

// Resolve returns the entry for a tool invocation. Tools backed by a single
// model accept an empty modelID; tools with several models (upscale,
// generate) require one.
func (c *Catalog) Resolve(tool, modelID string) (*Entry, error) {
	entries, ok := c.byTool[tool]
	if !ok {
		return nil, models.NewUnknownModelError(tool)
	}

	if modelID == "" {
		if len(entries) == 1 {
			return entries[0], nil
		}
		return nil, models.NewUnknownModelError(modelID)
	}

	entry, ok := c.entries[strings.ToLower(modelID)]
	if !ok || entry.Tool != tool {
		return nil, models.NewUnknownModelError(modelID)
	}
	return entry, nil
}

// CostFor returns the flat cost for a model id, or 0 when unknown. The
// zero-cost fallback keeps the proxy path permissive, but callers must treat
// unknown-model-with-zero-cost as suspect and log it.
func (c *Catalog) CostFor(modelID string, input Input) int {
	entry, ok := c.entries[strings.ToLower(modelID)]
	if !ok {
		return 0
	}
	return entry.Cost(input)
}

// ExtractMediaURL pulls the primary media URL from a provider response for
// the given model.
func (c *Catalog) ExtractMediaURL(modelID string, data map[string]interface{}) (string, error) {
	entry, ok := c.entries[strings.ToLower(modelID)]
	if !ok {
		return "", models.NewUnknownModelError(modelID)
	}
	return entry.Extract(data)
}

// MatchTargetURL resolves the model entry whose id the outbound provider URL
// ends with. Used by the proxy path to price pass-through requests.
func (c *Catalog) MatchTargetURL(targetURL string) (*Entry, bool) {
	lowered := strings.ToLower(strings.TrimSuffix(targetURL, "/"))
	var best *Entry
	bestLen := 0
	for id, entry := range c.entries {
		if strings.HasSuffix(lowered, id) && len(id) > bestLen {
			best = entry
			bestLen = len(id)
		}
	}
	return best, best != nil
}

func flatCost(cost int) CostFn {
	return func(Input) int { return cost }
}

// videoCost prices duration-based models: flat base plus a per-second
// surcharge beyond the included allotment.
func videoCost(base int, pricing VideoPricing) CostFn {
	return func(input Input) int {
		duration := intField(input, "duration", "duration_seconds")
		extra := duration - pricing.IncludedSeconds
		if extra <= 0 {
			return base
		}
		return base + extra*pricing.PerExtraSecond
	}
}

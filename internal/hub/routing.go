package hub

// DefaultProvider is the routing segment used when a model carries no hint;
// the router then decides the backend itself.
const DefaultProvider = "hf-inference"

// defaultHints pins models that only function on a specific backend
// provider. This table is the single source of truth for that routing
// knowledge; no dispatcher carries it.
var defaultHints = map[string]string{
	"black-forest-labs/FLUX.1-dev":                      "fal-ai",
	"black-forest-labs/FLUX.1-schnell":                  "fal-ai",
	"stabilityai/stable-video-diffusion-img2vid":        "fal-ai",
	"stabilityai/stable-video-diffusion-img2vid-xt":     "fal-ai",
	"damo-vilab/text-to-video-ms-1.7b":                  "replicate",
	"ali-vilab/modelscope-damo-text-to-video-synthesis": "replicate",
	"stabilityai/stable-diffusion-3-medium":             "hf-inference",
}

// RoutingTable is a read-only model → provider-hint mapping, populated once
// at process start. Lookups are total: an absent model simply means the
// router picks the backend.
type RoutingTable struct {
	hints map[string]string
}

// NewRoutingTable builds the table from the built-in hints plus overrides
// (typically from deployment config). Overrides win on conflict.
func NewRoutingTable(overrides map[string]string) *RoutingTable {
	hints := make(map[string]string, len(defaultHints)+len(overrides))
	for model, hint := range defaultHints {
		hints[model] = hint
	}
	for model, hint := range overrides {
		hints[model] = hint
	}
	return &RoutingTable{hints: hints}
}

// HintFor returns the routing hint for model, or false when the router
// should decide automatically.
func (t *RoutingTable) HintFor(model string) (string, bool) {
	hint, ok := t.hints[model]
	return hint, ok
}

// ProviderFor resolves the routing segment for model, falling back to
// DefaultProvider.
func (t *RoutingTable) ProviderFor(model string) string {
	if hint, ok := t.hints[model]; ok {
		return hint
	}
	return DefaultProvider
}

// Providers lists every distinct routing segment the table can resolve to,
// DefaultProvider included. The set is fixed for the process lifetime.
func (t *RoutingTable) Providers() []string {
	seen := map[string]bool{DefaultProvider: true}
	providers := []string{DefaultProvider}
	for _, hint := range t.hints {
		if !seen[hint] {
			seen[hint] = true
			providers = append(providers, hint)
		}
	}
	return providers
}

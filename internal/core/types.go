package core

// FeatureType identifies which product feature issued a request. It selects
// the default model, cache TTL and quota limits for the request.
type FeatureType string

const (
	FeatureCourseTutor         FeatureType = "course_tutor"
	FeatureChat                FeatureType = "chat"
	FeatureSchedulingAssistant FeatureType = "scheduling_assistant"
	FeatureStudyCoach          FeatureType = "study_coach"
	FeatureQuizGenerator       FeatureType = "quiz_generator"
	FeatureFlashcardGenerator  FeatureType = "flashcard_generator"
)

// Features lists every known feature type.
var Features = []FeatureType{
	FeatureCourseTutor,
	FeatureChat,
	FeatureSchedulingAssistant,
	FeatureStudyCoach,
	FeatureQuizGenerator,
	FeatureFlashcardGenerator,
}

// Valid reports whether f is a known feature type.
func (f FeatureType) Valid() bool {
	for _, known := range Features {
		if f == known {
			return true
		}
	}
	return false
}

// Provider identifies an upstream LLM vendor (or the deterministic mock).
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderChatbase  Provider = "chatbase"
	ProviderMock      Provider = "mock"
)

// ResponseFormat selects the completion output format.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Options holds per-request overrides. Every field is optional; unset fields
// fall back to the feature's configured defaults, resolved centrally by the
// orchestrator before the request reaches an adapter.
type Options struct {
	Model          string         `json:"model,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	ResponseFormat ResponseFormat `json:"response_format,omitempty"`
	CacheEnabled   *bool          `json:"cache_enabled,omitempty"`
	CacheTTL       *int           `json:"cache_ttl,omitempty"` // seconds
}

// CompletionRequest is the normalized request accepted by the orchestrator.
// It is treated as immutable once constructed; the cache fingerprint is
// derived from its resolved form.
type CompletionRequest struct {
	Prompt        string        `json:"prompt"`
	FeatureType   FeatureType   `json:"feature_type"`
	PromptVersion string        `json:"prompt_version,omitempty"`
	Options       Options       `json:"options,omitempty"`
	Functions     []FunctionDef `json:"functions,omitempty"`
}

// ResolvedRequest is a CompletionRequest after feature defaults have been
// applied: the model is concrete and generation parameters are final.
// Adapters only ever see resolved requests.
type ResolvedRequest struct {
	Prompt         string
	FeatureType    FeatureType
	Model          string
	Temperature    *float64
	MaxTokens      int
	TopP           *float64
	ResponseFormat ResponseFormat
	PromptVersion  string
	Functions      []FunctionDef
}

// TokenUsage holds normalized token counts as reported by the vendor.
// Counts are zero when the vendor omits usage metadata; they are never
// estimated client-side.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// CompletionResponse is the uniform result shape returned for every
// completion, regardless of provider. It is never mutated after return.
type CompletionResponse struct {
	Content         string     `json:"content"`
	TokensUsed      TokenUsage `json:"tokens_used"`
	CostCents       int64      `json:"cost_cents"`
	Model           string     `json:"model"`
	Provider        Provider   `json:"provider"`
	CacheHit        bool       `json:"cache_hit"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
}

// FunctionDef describes one callable function/tool offered to the model.
// Parameters is a JSON Schema object in the vendor-neutral form; adapters
// convert it to the vendor's tool-call representation.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  string `json:"parameters"` // JSON Schema, raw
}

// FunctionCallResult is the normalized outcome of a function-calling
// request. Arguments is the raw JSON argument object chosen by the model.
type FunctionCallResult struct {
	FunctionName string     `json:"function_name"`
	Arguments    string     `json:"arguments"`
	Content      string     `json:"content,omitempty"`
	TokensUsed   TokenUsage `json:"tokens_used"`
	CostCents    int64      `json:"cost_cents"`
	Model        string     `json:"model"`
	Provider     Provider   `json:"provider"`
}

// UsageStats aggregates a user's usage log over a lookback window.
// All fields are well-defined zeros when the window contains no entries.
type UsageStats struct {
	TotalRequests           int64   `json:"total_requests"`
	TotalTokens             int64   `json:"total_tokens"`
	TotalCostCents          int64   `json:"total_cost_cents"`
	CacheHitRate            float64 `json:"cache_hit_rate"`
	AverageTokensPerRequest float64 `json:"average_tokens_per_request"`
}

package toolchat

import (
	"time"

	"github.com/leofalp/toolchat/providers/ai"
	"github.com/leofalp/toolchat/providers/observability"
	"github.com/leofalp/toolchat/providers/tool"
)

const (
	// maxLoops bounds the number of rounds (including retried ones) in a
	// single Stream call. The bound is checked before each provider request,
	// so hitting it never issues another request.
	maxLoops = 20

	// maxRetries bounds how many transient provider failures a single Stream
	// call absorbs before giving up.
	maxRetries = 5
)

// ToolChat owns everything one conversation loop needs: the provider handle,
// the static tool list, the model, the recorder, and the observer. Instances
// are independent; two ToolChats may stream concurrently against the same
// provider. Use New to construct one.
type ToolChat struct {
	provider     ai.StreamProvider
	model        string
	systemPrompt string
	tools        *tool.Catalog
	generation   *ai.GenerationConfig
	recorder     RecordFunc
	observer     observability.Provider
	toolTimeout  time.Duration
}

// Option configures a ToolChat during construction.
type Option func(*ToolChat)

// WithModel sets the model identifier sent on every request.
func WithModel(model string) Option {
	return func(tc *ToolChat) {
		tc.model = model
	}
}

// WithSystemPrompt sets the system prompt sent on every request.
func WithSystemPrompt(prompt string) Option {
	return func(tc *ToolChat) {
		tc.systemPrompt = prompt
	}
}

// WithTools registers the static tool list. The active set is rebuilt from
// this list at the start of every round, so tools registered dynamically by a
// running tool survive exactly one further round.
func WithTools(tools ...tool.GenericTool) Option {
	return func(tc *ToolChat) {
		tc.tools.Add(tools...)
	}
}

// WithGenerationConfig sets optional sampling parameters for every request.
func WithGenerationConfig(cfg *ai.GenerationConfig) Option {
	return func(tc *ToolChat) {
		tc.generation = cfg
	}
}

// WithRecorder installs the audit callback invoked once per completed round.
// Retried rounds are discarded and produce no record; the retry count is
// visible in the next successful record.
func WithRecorder(recorder RecordFunc) Option {
	return func(tc *ToolChat) {
		tc.recorder = recorder
	}
}

// WithObserver installs the tracing/logging provider used for warnings
// (duplicate tool names), tool faults, and retry events.
func WithObserver(observer observability.Provider) Option {
	return func(tc *ToolChat) {
		tc.observer = observer
	}
}

// WithToolTimeout bounds each tool execution. Expiry is a recoverable tool
// error surfaced to the model, not a fatal engine error.
func WithToolTimeout(timeout time.Duration) Option {
	return func(tc *ToolChat) {
		tc.toolTimeout = timeout
	}
}

// New constructs a ToolChat bound to the given streaming provider.
func New(provider ai.StreamProvider, options ...Option) *ToolChat {
	tc := &ToolChat{
		provider: provider,
		tools:    tool.NewCatalog(),
	}
	for _, option := range options {
		option(tc)
	}
	return tc
}

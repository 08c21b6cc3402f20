package tool

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/leofalp/toolchat/internal/jsonschema"
	"github.com/leofalp/toolchat/internal/utils"
	"github.com/leofalp/toolchat/providers/ai"
	"github.com/leofalp/toolchat/providers/observability"
)

// minDescriptionLength is the shortest description accepted by Describe.
// Anything shorter gives the model too little to decide when to call the tool.
const minDescriptionLength = 10

// NoArgs is the parameter type for tools that take no input.
type NoArgs struct{}

// GenericTool is the type-erased interface for all tools. It abstracts over
// the concrete parameter type of Tool so tools can be stored, advertised, and
// dispatched without knowing their input types.
type GenericTool interface {
	// Name returns the tool's unique dispatch name.
	Name() string

	// Describe returns the descriptor advertised to the model, deriving and
	// validating the parameter schema on first use. It fails when the
	// description is missing or too short, or when the parameter type cannot
	// be expressed as a closed record.
	Describe() (ai.ToolDescription, error)

	// Call invokes the producer with a JSON-encoded argument payload and
	// returns the chunk sequence it yields. Argument parse failures surface
	// through the iterator as a *UsageError.
	Call(ctx context.Context, argsJSON string) iter.Seq2[Chunk, error]
}

// Producer is the execution shape of a tool: given validated input it yields
// chunks until done or failed. See the package documentation for the chunk
// protocol.
type Producer[I any] func(ctx context.Context, input I) iter.Seq2[Chunk, error]

// Tool binds a name and description to a typed producer. The parameter schema
// for I is derived once via reflection and cached, so repeated rounds never
// repeat the reflection work. Use New to construct a Tool.
type Tool[I any] struct {
	name        string
	description string
	producer    Producer[I]

	describeOnce sync.Once
	schema       *jsonschema.Schema
	describeErr  error
}

// New constructs a Tool with the given name, description, and producer.
// Validation is deferred to Describe so construction never fails; a tool with
// a bad description or parameter type fails loudly when first advertised.
func New[I any](name, description string, producer Producer[I]) *Tool[I] {
	return &Tool[I]{
		name:        name,
		description: description,
		producer:    producer,
	}
}

// Name returns the tool's dispatch name.
func (t *Tool[I]) Name() string {
	return t.name
}

// Describe implements GenericTool. The schema derivation runs once; both the
// schema and any validation error are cached for subsequent rounds.
func (t *Tool[I]) Describe() (ai.ToolDescription, error) {
	t.describeOnce.Do(func() {
		if len(t.description) < minDescriptionLength {
			t.describeErr = fmt.Errorf("tool %q: description must be at least %d characters", t.name, minDescriptionLength)
			return
		}

		t.schema, t.describeErr = jsonschema.GenerateSchema[I]()
		if t.describeErr != nil {
			t.describeErr = fmt.Errorf("tool %q: %w", t.name, t.describeErr)
			return
		}

		// NoArgs derives an empty closed record; keep it so every provider
		// receives a well-formed object schema.
	})

	if t.describeErr != nil {
		return ai.ToolDescription{}, t.describeErr
	}

	return ai.ToolDescription{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.schema,
	}, nil
}

// Call implements GenericTool. The JSON payload is parsed into I before the
// producer runs; a payload that cannot be parsed (even after repair) yields a
// *UsageError so the model can retry with corrected arguments.
func (t *Tool[I]) Call(ctx context.Context, argsJSON string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		span := observability.SpanFromContext(ctx)
		if span != nil {
			span.AddEvent(observability.EventToolExecutionStart,
				observability.String(observability.AttrToolName, t.name),
				observability.String(observability.AttrToolInput, utils.TruncateString(argsJSON, utils.DefaultMaxStringLength)),
			)
			defer span.AddEvent(observability.EventToolExecutionEnd)
		}

		if argsJSON == "" {
			// Providers send no argument payload for parameterless tools.
			argsJSON = "{}"
		}

		input, err := utils.ParseStringAs[I](argsJSON)
		if err != nil {
			if span != nil {
				span.RecordError(err)
			}
			yield(Chunk{}, &UsageError{Msg: fmt.Sprintf("invalid arguments: %v", err)})
			return
		}

		for chunk, chunkErr := range t.producer(ctx, input) {
			if !yield(chunk, chunkErr) {
				return
			}
			if chunkErr != nil {
				return
			}
		}
	}
}

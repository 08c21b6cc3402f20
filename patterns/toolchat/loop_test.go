package toolchat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/leofalp/toolchat/internal/utils"
	"github.com/leofalp/toolchat/providers/ai"
	"github.com/leofalp/toolchat/providers/observability"
	"github.com/leofalp/toolchat/providers/tool"
)

// scriptedProvider replays pre-built responses round by round and records
// every request it receives.
type scriptedProvider struct {
	responses []func() (*ai.ChatStream, error)
	requests  []ai.ChatRequest
}

func (p *scriptedProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	p.requests = append(p.requests, request)
	if len(p.requests) > len(p.responses) {
		return nil, fmt.Errorf("unscripted request %d", len(p.requests))
	}
	return p.responses[len(p.requests)-1]()
}

// eventStream builds a ChatStream that yields the given events then ends.
func eventStream(events ...ai.StreamEvent) func() (*ai.ChatStream, error) {
	return func() (*ai.ChatStream, error) {
		return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
			for _, event := range events {
				if !yield(event, nil) {
					return
				}
			}
		}), nil
	}
}

// failWith builds a response that fails before streaming starts.
func failWith(err error) func() (*ai.ChatStream, error) {
	return func() (*ai.ChatStream, error) {
		return nil, err
	}
}

// failMidStream builds a response that yields the given events and then fails
// through the iterator, the way an SSE error event surfaces.
func failMidStream(err error, events ...ai.StreamEvent) func() (*ai.ChatStream, error) {
	return func() (*ai.ChatStream, error) {
		return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
			for _, event := range events {
				if !yield(event, nil) {
					return
				}
			}
			yield(ai.StreamEvent{}, err)
		}), nil
	}
}

func contentEvents(fragments ...string) []ai.StreamEvent {
	var events []ai.StreamEvent
	for _, fragment := range fragments {
		events = append(events, ai.StreamEvent{Type: ai.StreamEventContent, Content: fragment})
	}
	return events
}

// toolCallEvents emits a header delta followed by argument fragments for one
// tool call index.
func toolCallEvents(index int, id, name string, argFragments ...string) []ai.StreamEvent {
	events := []ai.StreamEvent{{
		Type:     ai.StreamEventToolCall,
		ToolCall: &ai.ToolCallDelta{Index: index, ID: id, Name: name},
	}}
	for _, fragment := range argFragments {
		events = append(events, ai.StreamEvent{
			Type:     ai.StreamEventToolCall,
			ToolCall: &ai.ToolCallDelta{Index: index, Arguments: fragment},
		})
	}
	return events
}

func doneEvent(reason string) ai.StreamEvent {
	return ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: reason}
}

func usageEvent(prompt, completion int) ai.StreamEvent {
	return ai.StreamEvent{Type: ai.StreamEventUsage, Usage: &ai.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}}
}

func concat(events ...[]ai.StreamEvent) []ai.StreamEvent {
	var all []ai.StreamEvent
	for _, group := range events {
		all = append(all, group...)
	}
	return all
}

type lookupArgs struct {
	ID int `json:"id"`
}

// collectingRecorder captures audit records for assertions.
type collectingRecorder struct {
	records []Record
}

func (r *collectingRecorder) record(record Record) {
	r.records = append(r.records, record)
}

func TestStream_TextOnlyTerminatesAfterOneRound(t *testing.T) {
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			contentEvents("Hel", "lo", " world"),
			[]ai.StreamEvent{usageEvent(10, 3), doneEvent("stop")},
		)...),
	}}
	recorder := &collectingRecorder{}

	tc := New(provider, WithModel("gpt-4o"), WithRecorder(recorder.record))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Hi"}})

	var content strings.Builder
	for event, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Type == EventContent {
			content.WriteString(event.Content)
		}
	}

	if content.String() != "Hello world" {
		t.Errorf("expected live deltas to concatenate to 'Hello world', got %q", content.String())
	}
	if len(provider.requests) != 1 {
		t.Errorf("expected exactly 1 round, got %d", len(provider.requests))
	}

	history := stream.Messages()
	if len(history) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(history))
	}
	if history[1].Role != ai.RoleAssistant || history[1].Content != "Hello world" {
		t.Errorf("unexpected assistant message: %+v", history[1])
	}

	if len(recorder.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recorder.records))
	}
	record := recorder.records[0]
	if record.Content != "Hello world" || record.Retries != 0 {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.Usage.TotalTokens != 13 {
		t.Errorf("unexpected usage in record: %+v", record.Usage)
	}
	if len(record.Messages) != 1 || record.Messages[0].Role != ai.RoleUser {
		t.Errorf("expected record to snapshot the request history, got %+v", record.Messages)
	}
}

func TestStream_ToolCallRoundTrip(t *testing.T) {
	lookup := tool.New("lookup", "Looks up a record by numeric id.", func(ctx context.Context, input lookupArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			if !yield(tool.Message(fmt.Sprintf("looking up %d", input.ID)), nil) {
				return
			}
			yield(tool.Text(fmt.Sprintf("record %d: ok", input.ID)), nil)
		}
	})

	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			toolCallEvents(0, "call_1", "lookup", `{"id":`, `1}`),
			toolCallEvents(1, "call_2", "lookup", `{"id":2}`),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		eventStream(concat(
			contentEvents("Both found."),
			[]ai.StreamEvent{doneEvent("stop")},
		)...),
	}}

	tc := New(provider, WithModel("gpt-4o"), WithTools(lookup))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Look up 1 and 2"}})

	var toolMessages []string
	for event, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Type == EventToolMessage {
			toolMessages = append(toolMessages, event.Content)
		}
	}

	if len(toolMessages) != 2 || toolMessages[0] != "looking up 1" || toolMessages[1] != "looking up 2" {
		t.Errorf("unexpected tool messages: %v", toolMessages)
	}

	history := stream.Messages()
	// user, assistant(tool calls), tool result x2, assistant(final)
	if len(history) != 5 {
		t.Fatalf("expected 5 messages, got %d: %+v", len(history), history)
	}
	if len(history[1].ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls on the assistant message, got %d", len(history[1].ToolCalls))
	}
	if history[1].ToolCalls[0].Function.Arguments != `{"id":1}` {
		t.Errorf("fragments not reconstructed byte-exact: %q", history[1].ToolCalls[0].Function.Arguments)
	}
	if history[2].Role != ai.RoleTool || history[2].ToolCallID != "call_1" || history[2].Content != "record 1: ok" {
		t.Errorf("unexpected first tool result: %+v", history[2])
	}
	if history[3].ToolCallID != "call_2" || history[3].Content != "record 2: ok" {
		t.Errorf("unexpected second tool result: %+v", history[3])
	}
	if history[4].Content != "Both found." {
		t.Errorf("unexpected final message: %+v", history[4])
	}

	// The second request must carry the extended history, in order.
	secondRequest := provider.requests[1]
	if len(secondRequest.Messages) != 4 {
		t.Errorf("expected 4 messages in round 2 request, got %d", len(secondRequest.Messages))
	}

	// Tool messages never enter history.
	for _, msg := range history {
		if strings.HasPrefix(msg.Content, "looking up") {
			t.Errorf("user-facing tool message leaked into history: %+v", msg)
		}
	}
}

func TestStream_UsageErrorNamesToolAndContinues(t *testing.T) {
	grumpy := tool.New("grumpy", "Rejects every invocation it receives.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			yield(tool.Chunk{}, tool.Usagef("id %d not found", 9))
		}
	})

	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			toolCallEvents(0, "call_1", "grumpy", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		eventStream(concat(contentEvents("Giving up."), []ai.StreamEvent{doneEvent("stop")})...),
	}}

	tc := New(provider, WithModel("gpt-4o"), WithTools(grumpy))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Try it"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("usage error must not terminate the stream: %v", err)
		}
	}

	history := stream.Messages()
	toolResult := history[2]
	want := "Error executing tool 'grumpy': id 9 not found. Please try again."
	if toolResult.Content != want {
		t.Errorf("unexpected tool result:\nwant %q\ngot  %q", want, toolResult.Content)
	}
	if !toolResult.IsError {
		t.Error("expected tool result marked as error")
	}
	if len(provider.requests) != 2 {
		t.Errorf("expected the loop to continue to round 2, got %d rounds", len(provider.requests))
	}
}

func TestStream_InternalFaultAbsorbed(t *testing.T) {
	broken := tool.New("broken", "Fails with an internal fault every time.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			yield(tool.Chunk{}, errors.New("disk on fire"))
		}
	})

	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			toolCallEvents(0, "call_1", "broken", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		eventStream(concat(contentEvents("Noted."), []ai.StreamEvent{doneEvent("stop")})...),
	}}

	tc := New(provider, WithModel("gpt-4o"), WithTools(broken))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Go"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("internal fault must not terminate the stream: %v", err)
		}
	}

	toolResult := stream.Messages()[2]
	if toolResult.Content != "Error executing tool 'broken': disk on fire" {
		t.Errorf("unexpected tool result: %q", toolResult.Content)
	}
}

func TestStream_ToolTimeoutRecoverable(t *testing.T) {
	sleepy := tool.New("sleepy", "Blocks until its context is cancelled.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			<-ctx.Done()
			yield(tool.Chunk{}, ctx.Err())
		}
	})

	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			toolCallEvents(0, "call_1", "sleepy", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		eventStream(concat(contentEvents("Timed out."), []ai.StreamEvent{doneEvent("stop")})...),
	}}

	tc := New(provider, WithModel("gpt-4o"), WithTools(sleepy), WithToolTimeout(10*time.Millisecond))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Go"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("tool timeout must not terminate the stream: %v", err)
		}
	}

	toolResult := stream.Messages()[2]
	if toolResult.Content != "Error executing tool 'sleepy': context deadline exceeded" {
		t.Errorf("unexpected tool result: %q", toolResult.Content)
	}
	if !toolResult.IsError {
		t.Error("expected tool result marked as error")
	}
	if len(provider.requests) != 2 {
		t.Errorf("expected the loop to continue to round 2, got %d rounds", len(provider.requests))
	}
}

func TestStream_UnknownToolName(t *testing.T) {
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			toolCallEvents(0, "call_1", "ghost", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		eventStream(concat(contentEvents("Sorry."), []ai.StreamEvent{doneEvent("stop")})...),
	}}

	tc := New(provider, WithModel("gpt-4o"))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Go"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unknown tool must be recoverable: %v", err)
		}
	}

	toolResult := stream.Messages()[2]
	want := "Error executing tool 'ghost': tool not found. Please try again."
	if toolResult.Content != want {
		t.Errorf("unexpected tool result: %q", toolResult.Content)
	}
}

func TestStream_LoopBoundWithoutExtraRequest(t *testing.T) {
	relentless := tool.New("again", "Always asks to be called once more.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			yield(tool.Text("more"), nil)
		}
	})

	round := eventStream(concat(
		toolCallEvents(0, "call_1", "again", "{}"),
		[]ai.StreamEvent{doneEvent("tool_calls")},
	)...)
	responses := make([]func() (*ai.ChatStream, error), maxLoops)
	for i := range responses {
		responses[i] = round
	}
	provider := &scriptedProvider{responses: responses}

	tc := New(provider, WithModel("gpt-4o"), WithTools(relentless))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Loop"}})

	var terminal error
	for _, err := range stream.Iter() {
		if err != nil {
			terminal = err
		}
	}

	if !errors.Is(terminal, ErrTooManyLoops) {
		t.Fatalf("expected ErrTooManyLoops, got %v", terminal)
	}
	if len(provider.requests) != maxLoops {
		t.Errorf("expected exactly %d provider requests, got %d", maxLoops, len(provider.requests))
	}
	if stream.Messages() != nil {
		t.Error("Messages must be nil after a fatal termination")
	}
}

func TestStream_TransientRetryProducesOneRecord(t *testing.T) {
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		failWith(&utils.StatusError{StatusCode: 429, Body: "rate limited"}),
		eventStream(concat(contentEvents("Fine now."), []ai.StreamEvent{doneEvent("stop")})...),
	}}
	recorder := &collectingRecorder{}

	tc := New(provider, WithModel("gpt-4o"), WithRecorder(recorder.record))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Hi"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("transient error must be retried, got %v", err)
		}
	}

	if len(provider.requests) != 2 {
		t.Errorf("expected 2 requests (failed + retried), got %d", len(provider.requests))
	}
	if len(recorder.records) != 1 {
		t.Fatalf("discarded round must produce no record; got %d records", len(recorder.records))
	}
	if recorder.records[0].Retries != 1 {
		t.Errorf("expected retryCount 1 in the successful record, got %d", recorder.records[0].Retries)
	}
}

func TestStream_MidStreamOverloadRetried(t *testing.T) {
	overload := fmt.Errorf("anthropic stream error: %w", &utils.StatusError{StatusCode: 529, Body: "Overloaded"})
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		failMidStream(overload, contentEvents("partial ans")...),
		eventStream(concat(contentEvents("Recovered."), []ai.StreamEvent{doneEvent("stop")})...),
	}}
	recorder := &collectingRecorder{}

	tc := New(provider, WithModel("claude-3-7-sonnet"), WithRecorder(recorder.record))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Hi"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("mid-stream overload must be retried, got %v", err)
		}
	}

	if len(provider.requests) != 2 {
		t.Errorf("expected 2 requests (failed + retried), got %d", len(provider.requests))
	}
	if len(recorder.records) != 1 {
		t.Fatalf("discarded round must produce no record; got %d records", len(recorder.records))
	}
	if recorder.records[0].Retries != 1 {
		t.Errorf("expected retryCount 1 in the successful record, got %d", recorder.records[0].Retries)
	}

	// Round state from the failed attempt is discarded; only the retried
	// round's content enters history.
	history := stream.Messages()
	if len(history) != 2 || history[1].Content != "Recovered." {
		t.Errorf("unexpected history after retry: %+v", history)
	}
}

func TestStream_RetryBoundExhausted(t *testing.T) {
	always429 := failWith(&utils.StatusError{StatusCode: 429, Body: "rate limited"})
	responses := make([]func() (*ai.ChatStream, error), maxRetries+1)
	for i := range responses {
		responses[i] = always429
	}
	provider := &scriptedProvider{responses: responses}

	tc := New(provider, WithModel("gpt-4o"))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Hi"}})

	var terminal error
	for _, err := range stream.Iter() {
		if err != nil {
			terminal = err
		}
	}

	if !errors.Is(terminal, ErrTooManyRetries) {
		t.Fatalf("expected ErrTooManyRetries, got %v", terminal)
	}
	if len(provider.requests) != maxRetries+1 {
		t.Errorf("expected %d attempts before giving up, got %d", maxRetries+1, len(provider.requests))
	}
}

func TestStream_FatalProviderError(t *testing.T) {
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		failWith(&utils.StatusError{StatusCode: 401, Body: "bad key"}),
	}}
	recorder := &collectingRecorder{}

	tc := New(provider, WithModel("gpt-4o"), WithRecorder(recorder.record))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Hi"}})

	var terminal error
	for _, err := range stream.Iter() {
		if err != nil {
			terminal = err
		}
	}

	var statusErr *utils.StatusError
	if !errors.As(terminal, &statusErr) || statusErr.StatusCode != 401 {
		t.Fatalf("expected the 401 to propagate, got %v", terminal)
	}
	if len(provider.requests) != 1 {
		t.Errorf("fatal errors must not be retried; got %d requests", len(provider.requests))
	}
	if len(recorder.records) != 1 || recorder.records[0].Err == nil {
		t.Errorf("expected a record carrying the fatal error, got %+v", recorder.records)
	}
}

func TestStream_DynamicToolLivesOneRound(t *testing.T) {
	sub := tool.New("sub", "A helper registered at runtime.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			yield(tool.Text("sub result"), nil)
		}
	})
	parent := tool.New("parent", "Registers the sub tool on demand.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			if !yield(tool.Register(sub), nil) {
				return
			}
			yield(tool.Text("registered sub"), nil)
		}
	})

	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		// Round 1: model calls parent, which registers sub.
		eventStream(concat(
			toolCallEvents(0, "call_1", "parent", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		// Round 2: sub is advertised and callable.
		eventStream(concat(
			toolCallEvents(0, "call_2", "sub", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		// Round 3: sub did not re-register, so it is gone again.
		eventStream(concat(contentEvents("Done."), []ai.StreamEvent{doneEvent("stop")})...),
	}}

	tc := New(provider, WithModel("gpt-4o"), WithTools(parent))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Go"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	toolNames := func(specs []ai.ToolDescription) []string {
		var names []string
		for _, spec := range specs {
			names = append(names, spec.Name)
		}
		return names
	}

	round1 := toolNames(provider.requests[0].Tools)
	round2 := toolNames(provider.requests[1].Tools)
	round3 := toolNames(provider.requests[2].Tools)

	if len(round1) != 1 || round1[0] != "parent" {
		t.Errorf("round 1 should advertise only the static set, got %v", round1)
	}
	if len(round2) != 2 || round2[0] != "parent" || round2[1] != "sub" {
		t.Errorf("round 2 should advertise parent + sub, got %v", round2)
	}
	if len(round3) != 1 || round3[0] != "parent" {
		t.Errorf("round 3 should drop the dynamic tool, got %v", round3)
	}

	// The dynamic tool actually ran in round 2.
	history := stream.Messages()
	var subResult *ai.Message
	for i := range history {
		if history[i].Role == ai.RoleTool && history[i].ToolCallID == "call_2" {
			subResult = &history[i]
		}
	}
	if subResult == nil || subResult.Content != "sub result" {
		t.Errorf("expected the dynamic tool to execute, got %+v", subResult)
	}
}

func TestStream_ReasoningNeverPersisted(t *testing.T) {
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(
			ai.StreamEvent{Type: ai.StreamEventReasoning, Reasoning: "thinking hard"},
			ai.StreamEvent{Type: ai.StreamEventContent, Content: "Answer."},
			doneEvent("stop"),
		),
	}}

	tc := New(provider, WithModel("claude-3-7-sonnet"))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Hmm"}})

	var sawReasoning bool
	for event, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Type == EventReasoning {
			sawReasoning = true
		}
	}

	if !sawReasoning {
		t.Error("expected a live reasoning event")
	}
	for _, msg := range stream.Messages() {
		if strings.Contains(msg.Content, "thinking hard") {
			t.Errorf("reasoning leaked into history: %+v", msg)
		}
	}
}

func TestStream_ProtocolViolationIsFatal(t *testing.T) {
	rogue := tool.New("rogue", "Yields an invalid zero chunk value.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			yield(tool.Chunk{}, nil)
		}
	})

	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			toolCallEvents(0, "call_1", "rogue", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
	}}

	tc := New(provider, WithModel("gpt-4o"), WithTools(rogue))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Go"}})

	var terminal error
	for _, err := range stream.Iter() {
		if err != nil {
			terminal = err
		}
	}

	if !errors.Is(terminal, tool.ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", terminal)
	}
}

func TestStream_DescriptorValidationIsFatal(t *testing.T) {
	bad := tool.New("bad", "short", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {}
	})

	provider := &scriptedProvider{}
	tc := New(provider, WithModel("gpt-4o"), WithTools(bad))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Go"}})

	var terminal error
	for _, err := range stream.Iter() {
		if err != nil {
			terminal = err
		}
	}

	if terminal == nil {
		t.Fatal("expected a validation error")
	}
	if len(provider.requests) != 0 {
		t.Errorf("validation failures must not reach the provider; got %d requests", len(provider.requests))
	}
}

// warnCapturingObserver records Warn calls; all other methods are no-ops.
type warnCapturingObserver struct {
	warnings []string
}

func (o *warnCapturingObserver) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	return ctx, nil
}
func (o *warnCapturingObserver) Trace(context.Context, string, ...observability.Attribute) {}
func (o *warnCapturingObserver) Debug(context.Context, string, ...observability.Attribute) {}
func (o *warnCapturingObserver) Info(context.Context, string, ...observability.Attribute)  {}
func (o *warnCapturingObserver) Warn(_ context.Context, msg string, _ ...observability.Attribute) {
	o.warnings = append(o.warnings, msg)
}
func (o *warnCapturingObserver) Error(context.Context, string, ...observability.Attribute) {}

func TestStream_DuplicateNamesWarnOnly(t *testing.T) {
	first := tool.New("twin", "The first of two tools sharing a name.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			yield(tool.Text("first"), nil)
		}
	})
	second := tool.New("twin", "The second of two tools sharing a name.", func(ctx context.Context, _ tool.NoArgs) iter.Seq2[tool.Chunk, error] {
		return func(yield func(tool.Chunk, error) bool) {
			yield(tool.Text("second"), nil)
		}
	})

	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(
			toolCallEvents(0, "call_1", "twin", "{}"),
			[]ai.StreamEvent{doneEvent("tool_calls")},
		)...),
		eventStream(concat(contentEvents("Done."), []ai.StreamEvent{doneEvent("stop")})...),
	}}
	observer := &warnCapturingObserver{}

	tc := New(provider, WithModel("gpt-4o"), WithTools(first, second), WithObserver(observer))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Go"}})

	for _, err := range stream.Iter() {
		if err != nil {
			t.Fatalf("duplicate names must not abort: %v", err)
		}
	}

	if len(observer.warnings) == 0 {
		t.Error("expected a duplicate-name warning")
	}
	// First registration wins at dispatch.
	if got := stream.Messages()[2].Content; got != "first" {
		t.Errorf("expected first-match dispatch, got %q", got)
	}
}

func TestStream_MessagesNilBeforeConsumption(t *testing.T) {
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(contentEvents("Hi."), []ai.StreamEvent{doneEvent("stop")})...),
	}}

	tc := New(provider, WithModel("gpt-4o"))
	stream := tc.Stream(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Hi"}})

	if stream.Messages() != nil {
		t.Error("Messages must be nil before the stream is consumed")
	}

	history, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 messages after Collect, got %d", len(history))
	}
}

func TestStream_InitialHistoryNotMutated(t *testing.T) {
	provider := &scriptedProvider{responses: []func() (*ai.ChatStream, error){
		eventStream(concat(contentEvents("Hi."), []ai.StreamEvent{doneEvent("stop")})...),
	}}

	initial := make([]ai.Message, 0, 8)
	initial = append(initial, ai.Message{Role: ai.RoleUser, Content: "Hi"})

	tc := New(provider, WithModel("gpt-4o"))
	stream := tc.Stream(context.Background(), initial)
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if len(initial) != 1 {
		t.Errorf("caller-owned slice was mutated: %+v", initial)
	}
}

package ai

import (
	"iter"
	"strings"
)

// StreamEventType identifies the kind of delta carried by a StreamEvent.
type StreamEventType string

const (
	// StreamEventContent indicates a text content delta.
	StreamEventContent StreamEventType = "content"
	// StreamEventToolCall indicates an incremental tool call delta (header or arguments chunk).
	StreamEventToolCall StreamEventType = "tool_call"
	// StreamEventReasoning indicates a reasoning/thinking content delta.
	StreamEventReasoning StreamEventType = "reasoning"
	// StreamEventUsage carries token usage metadata.
	StreamEventUsage StreamEventType = "usage"
	// StreamEventDone signals that the stream has finished normally.
	StreamEventDone StreamEventType = "done"
)

// ToolCallDelta represents an incremental update to a tool call being streamed.
// The Index field identifies which tool call is being updated (there may be
// multiple concurrent tool calls). ID and Name are only present on the first
// chunk for a given index; subsequent chunks carry only Arguments fragments.
type ToolCallDelta struct {
	Index     int    `json:"index"`               // Position in the tool calls list
	ID        string `json:"id,omitempty"`        // Tool call ID (first chunk only)
	Name      string `json:"name,omitempty"`      // Function name (first chunk only)
	Arguments string `json:"arguments,omitempty"` // Incremental JSON argument fragment
}

// StreamEvent represents a single delta yielded during response streaming.
// Each event carries exactly one type of payload, identified by the Type field.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Content      string          `json:"content,omitempty"`       // Text delta (Type == StreamEventContent)
	Reasoning    string          `json:"reasoning,omitempty"`     // Reasoning delta (Type == StreamEventReasoning)
	ToolCall     *ToolCallDelta  `json:"tool_call,omitempty"`     // Tool call delta (Type == StreamEventToolCall)
	Usage        *Usage          `json:"usage,omitempty"`         // Token usage (Type == StreamEventUsage)
	FinishReason string          `json:"finish_reason,omitempty"` // Present on StreamEventDone
}

// ChatStream wraps a streaming iterator over normalized events.
//
// Important: callers must consume the stream, either by iterating with Iter()
// (including breaking out of the loop early) or by abandoning the range loop.
// The underlying provider may hold open resources (such as an HTTP response
// body) that are only released when the iterator completes or is abandoned.
// Constructing a ChatStream and never iterating it will leak those resources.
type ChatStream struct {
	iterator iter.Seq2[StreamEvent, error]
}

// NewChatStream creates a ChatStream from a raw streaming iterator.
// The iterator is expected to yield StreamEvent values (with nil error) for
// normal deltas, and may yield a non-nil error to signal a mid-stream failure.
func NewChatStream(iterator iter.Seq2[StreamEvent, error]) *ChatStream {
	return &ChatStream{iterator: iterator}
}

// Iter returns the underlying iterator for use with range-over-func loops.
//
// Example:
//
//	for event, err := range stream.Iter() {
//	    if err != nil { handle error }
//	    fmt.Print(event.Content)
//	}
func (stream *ChatStream) Iter() iter.Seq2[StreamEvent, error] {
	return stream.iterator
}

// ToolCallAccumulator reconstructs complete tool calls from streamed deltas.
// Fragments are concatenated per index in arrival order, so the finalized
// argument string is byte-identical to the payload the provider streamed.
// The shared invariant with the adapters: ID and Name arrive on the first
// chunk for a given Index; subsequent chunks carry only Arguments fragments.
type ToolCallAccumulator struct {
	builders []toolCallBuilder
}

// toolCallBuilder accumulates incremental deltas for a single tool call index.
type toolCallBuilder struct {
	id        string
	name      string
	arguments strings.Builder
}

// Add merges a delta into the accumulator, growing the builder list as new
// indices appear.
func (acc *ToolCallAccumulator) Add(delta *ToolCallDelta) {
	if delta == nil {
		return
	}

	for len(acc.builders) <= delta.Index {
		acc.builders = append(acc.builders, toolCallBuilder{})
	}

	builder := &acc.builders[delta.Index]

	if delta.ID != "" {
		builder.id = delta.ID
	}
	if delta.Name != "" {
		builder.name = delta.Name
	}
	if delta.Arguments != "" {
		builder.arguments.WriteString(delta.Arguments)
	}
}

// Len reports how many tool call indices have been seen so far.
func (acc *ToolCallAccumulator) Len() int {
	return len(acc.builders)
}

// Calls finalizes the accumulated deltas into complete ToolCall values,
// ordered by index.
func (acc *ToolCallAccumulator) Calls() []ToolCall {
	if len(acc.builders) == 0 {
		return nil
	}

	toolCalls := make([]ToolCall, 0, len(acc.builders))
	for i := range acc.builders {
		builder := &acc.builders[i]
		toolCalls = append(toolCalls, ToolCall{
			ID:   builder.id,
			Type: "function",
			Function: ToolCallFunction{
				Name:      builder.name,
				Arguments: builder.arguments.String(),
			},
		})
	}
	return toolCalls
}

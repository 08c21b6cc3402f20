package toolchat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leofalp/toolchat/providers/ai"
	"github.com/leofalp/toolchat/providers/observability"
	"github.com/leofalp/toolchat/providers/tool"
)

var (
	// ErrTooManyLoops terminates a conversation that keeps requesting tools
	// past the round bound.
	ErrTooManyLoops = errors.New("conversation exceeded the round bound")

	// ErrTooManyRetries terminates a conversation after too many transient
	// provider failures.
	ErrTooManyRetries = errors.New("conversation exceeded the retry bound")
)

// Stream starts the orchestration loop over the given initial history and
// returns the live output stream. The loop runs lazily inside the returned
// iterator; nothing happens until the caller starts ranging over it.
//
// Fatal errors (validation failures, fatal provider errors, protocol
// violations, exhausted bounds) surface as the iterator's terminal error.
// Recoverable tool errors never do; they become model-visible result strings
// so the model can self-correct.
func (tc *ToolChat) Stream(ctx context.Context, messages []ai.Message) *Stream {
	stream := &Stream{}

	stream.iterator = func(yield func(Event, error) bool) {
		history := make([]ai.Message, len(messages))
		copy(history, messages)

		// The active set starts as the static list and is rebuilt from it
		// after every dispatch, so dynamic registrations live one round.
		active := tc.tools.Clone()

		loops := 0
		retries := 0

		for {
			// Bounds are checked before the request so an exhausted
			// conversation never costs another provider call.
			loops++
			if loops > maxLoops {
				yield(Event{}, fmt.Errorf("%w (%d rounds)", ErrTooManyLoops, maxLoops))
				return
			}
			if retries > maxRetries {
				yield(Event{}, fmt.Errorf("%w (%d retries)", ErrTooManyRetries, maxRetries))
				return
			}

			// BUILD_SPECS: derive descriptors for the full active set. A
			// validation failure is a configuration bug and fatal.
			specs, err := active.Describe()
			if err != nil {
				yield(Event{}, err)
				return
			}
			if duplicates := active.Duplicates(); len(duplicates) > 0 && tc.observer != nil {
				tc.observer.Warn(ctx, "duplicate tool names advertised",
					observability.String("tool.names", strings.Join(duplicates, ", ")),
					observability.Int(observability.AttrLoopRound, loops),
				)
			}

			// Snapshot the request history for the audit record before the
			// round mutates it.
			requestMessages := make([]ai.Message, len(history))
			copy(requestMessages, history)

			// REQUEST/STREAM: issue the streaming request and consume the
			// normalized events into this round's state.
			var roundText strings.Builder
			var acc ai.ToolCallAccumulator
			var usage ai.Usage

			chatStream, streamErr := tc.provider.StreamMessage(ctx, ai.ChatRequest{
				Model:            tc.model,
				Messages:         history,
				SystemPrompt:     tc.systemPrompt,
				Tools:            specs,
				GenerationConfig: tc.generation,
			})
			if streamErr == nil {
				for event, iterErr := range chatStream.Iter() {
					if iterErr != nil {
						streamErr = iterErr
						break
					}

					switch event.Type {
					case ai.StreamEventContent:
						roundText.WriteString(event.Content)
						if !yield(Event{Type: EventContent, Content: event.Content}, nil) {
							return
						}

					case ai.StreamEventReasoning:
						// Forwarded live, never persisted.
						if !yield(Event{Type: EventReasoning, Content: event.Reasoning}, nil) {
							return
						}

					case ai.StreamEventToolCall:
						acc.Add(event.ToolCall)

					case ai.StreamEventUsage:
						if event.Usage != nil {
							usage.Add(*event.Usage)
						}
					}
				}
			}

			if streamErr != nil {
				if ai.IsTransient(streamErr) {
					// RETRY: discard round state, keep history. The retried
					// round consumes a loop slot and produces no record.
					retries++
					if tc.observer != nil {
						tc.observer.Warn(ctx, "transient provider error, retrying round",
							observability.Error(streamErr),
							observability.Int(observability.AttrLoopRound, loops),
							observability.Int(observability.AttrLoopRetries, retries),
						)
					}
					continue
				}

				// FATAL: record the failed round so the audit trail shows
				// what was in flight, then terminate the stream.
				if tc.recorder != nil {
					tc.recorder(Record{
						Model:     tc.model,
						Messages:  requestMessages,
						Tools:     specs,
						Content:   roundText.String(),
						ToolCalls: acc.Calls(),
						Usage:     usage,
						Retries:   retries,
						Err:       streamErr,
					})
				}
				yield(Event{}, streamErr)
				return
			}

			// ASSEMBLE: finalize the accumulated fragments and append exactly
			// one assistant message for the round.
			toolCalls := acc.Calls()
			content := roundText.String()

			if content != "" || len(toolCalls) > 0 {
				history = append(history, ai.Message{
					Role:      ai.RoleAssistant,
					Content:   content,
					ToolCalls: toolCalls,
				})
			}

			if tc.recorder != nil {
				tc.recorder(Record{
					Model:     tc.model,
					Messages:  requestMessages,
					Tools:     specs,
					Content:   content,
					ToolCalls: toolCalls,
					Usage:     usage,
					Retries:   retries,
				})
			}

			// TERMINATE: a round with no tool calls ends the conversation.
			if len(toolCalls) == 0 {
				stream.messages = history
				stream.done = true
				return
			}

			// DISPATCH_TOOLS: the next round's set restarts from the static
			// list; registrations from this round's tools are layered on top.
			// Dispatch itself resolves against the set that was advertised
			// for this round, in strict call order, never concurrently.
			next := tc.tools.Clone()
			for _, call := range toolCalls {
				result, isError, stopped, fatalErr := tc.runTool(ctx, active, next, call, func(event Event) bool {
					return yield(event, nil)
				})
				if stopped {
					return
				}
				if fatalErr != nil {
					yield(Event{}, fatalErr)
					return
				}

				history = append(history, ai.Message{
					Role:       ai.RoleTool,
					Content:    result,
					ToolCallID: call.ID,
					Name:       call.Function.Name,
					IsError:    isError,
				})
			}
			active = next
		}
	}

	return stream
}

// runTool executes one tool call and aggregates its chunk stream into the
// model-facing result payload. User-facing messages are forwarded through
// emit; registrations land in next. Recoverable failures (unknown tool, bad
// arguments, usage errors, internal faults, timeouts) are absorbed into an
// error string so the model can self-correct; only a protocol violation is
// returned as a fatal error.
func (tc *ToolChat) runTool(ctx context.Context, roundTools, next *tool.Catalog, call ai.ToolCall, emit func(Event) bool) (result string, isError bool, stopped bool, fatal error) {
	name := call.Function.Name

	t, ok := roundTools.Resolve(name)
	if !ok {
		return usageErrorString(name, "tool not found"), true, false, nil
	}

	runCtx := ctx
	if tc.toolTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, tc.toolTimeout)
		defer cancel()
	}

	var payload strings.Builder
	for chunk, err := range t.Call(runCtx, call.Function.Arguments) {
		if err != nil {
			var usageErr *tool.UsageError
			if errors.As(err, &usageErr) {
				return usageErrorString(name, usageErr.Msg), true, false, nil
			}

			// Internal faults (including timeouts) are logged and absorbed,
			// never silently swallowed and never fatal to the loop.
			if tc.observer != nil {
				tc.observer.Error(ctx, "tool execution failed",
					observability.String(observability.AttrToolName, name),
					observability.Error(err),
				)
			}
			return fmt.Sprintf("Error executing tool '%s': %v", name, err), true, false, nil
		}

		switch chunk.Kind() {
		case tool.ChunkText:
			payload.WriteString(chunk.Text())

		case tool.ChunkMessage:
			if !emit(Event{Type: EventToolMessage, Content: chunk.Text()}) {
				return "", false, true, nil
			}

		case tool.ChunkRegister:
			if registered := chunk.Tool(); registered != nil {
				next.Add(registered)
			}

		default:
			return "", false, false, fmt.Errorf("tool %q: %w", name, tool.ErrProtocolViolation)
		}
	}

	return payload.String(), false, false, nil
}

// usageErrorString formats a recoverable tool failure the way it is shown to
// the model, naming the tool and inviting a corrected retry.
func usageErrorString(name, msg string) string {
	return fmt.Sprintf("Error executing tool '%s': %s. Please try again.", name, msg)
}

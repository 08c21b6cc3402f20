package tool

import (
	"errors"
	"fmt"
)

// ChunkKind discriminates the three element kinds a tool producer may yield.
type ChunkKind int

const (
	// ChunkText is a fragment of the model-facing result payload.
	ChunkText ChunkKind = iota + 1
	// ChunkMessage is a user-facing message, forwarded live to the caller and
	// never sent to the model or persisted in history.
	ChunkMessage
	// ChunkRegister carries a new tool to activate for the next round.
	ChunkRegister
)

// ErrProtocolViolation is returned when a producer yields a chunk that is not
// one of the three defined kinds. It aborts the whole conversation because it
// indicates a programming error in the tool, not a recoverable condition.
var ErrProtocolViolation = errors.New("tool yielded an undefined chunk kind")

// Chunk is the closed union yielded by tool producers. Construct values only
// through Text, Message, or Register; the zero Chunk is invalid and trips
// ErrProtocolViolation when consumed.
type Chunk struct {
	kind ChunkKind
	text string
	tool GenericTool
}

// Text returns a chunk carrying a fragment of the tool result sent back to
// the model. Fragments are concatenated in yield order.
func Text(s string) Chunk {
	return Chunk{kind: ChunkText, text: s}
}

// Message returns a chunk carrying a user-facing status message. It is
// forwarded to the caller's output stream immediately and never reaches the
// model.
func Message(s string) Chunk {
	return Chunk{kind: ChunkMessage, text: s}
}

// Register returns a chunk that adds t to the active tool set for the next
// round. The active set is rebuilt from the static list each round, so the
// registration lasts exactly one further round unless the tool re-registers it.
func Register(t GenericTool) Chunk {
	return Chunk{kind: ChunkRegister, tool: t}
}

// Kind reports which variant this chunk is.
func (c Chunk) Kind() ChunkKind {
	return c.kind
}

// Text returns the payload of a ChunkText or ChunkMessage chunk.
func (c Chunk) Text() string {
	return c.text
}

// Tool returns the payload of a ChunkRegister chunk.
func (c Chunk) Tool() GenericTool {
	return c.tool
}

// UsageError marks a recoverable tool failure caused by how the tool was
// invoked: malformed arguments, a missing resource, a business-rule violation.
// The orchestration loop converts it into a model-visible error string so the
// model can correct itself, instead of aborting the conversation.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// Usagef builds a UsageError with fmt.Sprintf formatting.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

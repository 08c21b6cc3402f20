package toolchat

import (
	"iter"

	"github.com/leofalp/toolchat/providers/ai"
)

// EventType identifies the kind of output carried by an Event.
type EventType string

const (
	// EventContent is an assistant text delta, forwarded as it streams in.
	EventContent EventType = "content"

	// EventToolMessage is a user-facing message emitted by a running tool.
	// It never reaches the model and is never persisted in history.
	EventToolMessage EventType = "tool_message"

	// EventReasoning is an ephemeral thinking fragment. It is shown live but
	// excluded from the history fed to subsequent rounds.
	EventReasoning EventType = "reasoning"
)

// Event is a single element of the live output stream.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// Stream is the live output of one ToolChat.Stream call. The iterator must be
// consumed to completion to reach termination; Messages is only valid after
// the iterator has finished without error.
type Stream struct {
	iterator iter.Seq2[Event, error]
	messages []ai.Message
	done     bool
}

// Iter returns the underlying iterator for range-over-func consumption.
//
// Example:
//
//	for event, err := range stream.Iter() {
//	    if err != nil { handle error }
//	    switch event.Type {
//	    case toolchat.EventContent:
//	        fmt.Print(event.Content)
//	    case toolchat.EventToolMessage:
//	        fmt.Printf("\n[%s]\n", event.Content)
//	    }
//	}
func (s *Stream) Iter() iter.Seq2[Event, error] {
	return s.iterator
}

// Messages returns the extended conversation history after the stream has
// been fully consumed. It returns nil if the stream has not terminated
// normally, because a partially-driven round has no coherent history.
func (s *Stream) Messages() []ai.Message {
	if !s.done {
		return nil
	}
	return s.messages
}

// Collect consumes the entire stream, discarding live events, and returns the
// final history. Any mid-stream error terminates collection and is returned.
func (s *Stream) Collect() ([]ai.Message, error) {
	for _, err := range s.iterator {
		if err != nil {
			return nil, err
		}
	}
	return s.Messages(), nil
}

package toolchat

import "github.com/leofalp/toolchat/providers/ai"

// Record is an immutable per-round audit snapshot handed to the recorder
// after a round completes (or fails fatally). Messages and Tools are copies
// of what was sent to the provider for the round; Content and ToolCalls are
// what the round produced.
type Record struct {
	Model     string               `json:"model"`
	Messages  []ai.Message         `json:"messages"`
	Tools     []ai.ToolDescription `json:"tools,omitempty"`
	Content   string               `json:"content,omitempty"`
	ToolCalls []ai.ToolCall        `json:"tool_calls,omitempty"`
	Usage     ai.Usage             `json:"usage"`
	Retries   int                  `json:"retries"`
	Err       error                `json:"-"`
}

// RecordFunc receives one Record per completed round. Implementations must
// not retain the slices past the call if they mutate them.
type RecordFunc func(record Record)

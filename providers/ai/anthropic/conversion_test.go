package anthropic

import (
	"testing"

	"github.com/leofalp/toolchat/internal/jsonschema"
	"github.com/leofalp/toolchat/providers/ai"
)

func TestRequestToAnthropic_SystemPromptField(t *testing.T) {
	req := requestToAnthropic(ai.ChatRequest{
		Model:        "claude-3-7-sonnet",
		SystemPrompt: "Be terse.",
		Messages:     []ai.Message{{Role: ai.RoleUser, Content: "Hi"}},
	})

	if req.System != "Be terse." {
		t.Errorf("expected system prompt in system field, got %q", req.System)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(req.Messages))
	}
	if req.MaxTokens != defaultMaxTokens {
		t.Errorf("expected default max_tokens %d, got %d", defaultMaxTokens, req.MaxTokens)
	}
}

func TestRequestToAnthropic_SystemHoistedFromHistory(t *testing.T) {
	req := requestToAnthropic(ai.ChatRequest{
		Model: "claude-3-7-sonnet",
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: "You are a pirate."},
			{Role: ai.RoleUser, Content: "Hi"},
		},
	})

	if req.System != "You are a pirate." {
		t.Errorf("expected leading system message hoisted, got %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("expected system message removed from history, got %+v", req.Messages)
	}
}

func TestRequestToAnthropic_GenerationConfig(t *testing.T) {
	req := requestToAnthropic(ai.ChatRequest{
		Model:            "claude-3-7-sonnet",
		Messages:         []ai.Message{{Role: ai.RoleUser, Content: "Hi"}},
		GenerationConfig: &ai.GenerationConfig{MaxTokens: 1024, Temperature: 0.7},
	})

	if req.MaxTokens != 1024 {
		t.Errorf("expected max_tokens 1024, got %d", req.MaxTokens)
	}
	if req.Temperature == nil || *req.Temperature < 0.69 || *req.Temperature > 0.71 {
		t.Errorf("temperature not mapped: %v", req.Temperature)
	}
}

func TestBuildMessages_AssistantToolCalls(t *testing.T) {
	messages := buildMessages([]ai.Message{
		{Role: ai.RoleAssistant, Content: "Let me check.", ToolCalls: []ai.ToolCall{
			{ID: "toolu_1", Type: "function", Function: ai.ToolCallFunction{Name: "lookup", Arguments: `{"id":7}`}},
			{ID: "toolu_2", Type: "function", Function: ai.ToolCallFunction{Name: "ping", Arguments: ""}},
		}},
	})

	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	blocks := messages[0].Content
	if len(blocks) != 3 {
		t.Fatalf("expected text + 2 tool_use blocks, got %d", len(blocks))
	}
	if blocks[0].Type != "text" || blocks[0].Text != "Let me check." {
		t.Errorf("unexpected text block: %+v", blocks[0])
	}
	if blocks[1].Type != "tool_use" || blocks[1].ID != "toolu_1" || blocks[1].Name != "lookup" {
		t.Errorf("unexpected tool_use block: %+v", blocks[1])
	}
	if string(blocks[2].Input) != "{}" {
		t.Errorf("expected empty arguments mapped to {}, got %q", string(blocks[2].Input))
	}
}

func TestBuildMessages_MergesConsecutiveToolResults(t *testing.T) {
	messages := buildMessages([]ai.Message{
		{Role: ai.RoleUser, Content: "Do both"},
		{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{
			{ID: "toolu_1", Type: "function", Function: ai.ToolCallFunction{Name: "a", Arguments: "{}"}},
			{ID: "toolu_2", Type: "function", Function: ai.ToolCallFunction{Name: "b", Arguments: "{}"}},
		}},
		{Role: ai.RoleTool, Content: "result a", ToolCallID: "toolu_1", Name: "a"},
		{Role: ai.RoleTool, Content: "oops", ToolCallID: "toolu_2", Name: "b", IsError: true},
	})

	if len(messages) != 3 {
		t.Fatalf("expected 3 messages (user, assistant, merged tool results), got %d", len(messages))
	}
	resultMsg := messages[2]
	if resultMsg.Role != "user" {
		t.Errorf("expected tool results in a user message, got role %q", resultMsg.Role)
	}
	if len(resultMsg.Content) != 2 {
		t.Fatalf("expected 2 merged tool_result blocks, got %d", len(resultMsg.Content))
	}
	if resultMsg.Content[0].ToolUseID != "toolu_1" || resultMsg.Content[0].IsError {
		t.Errorf("unexpected first tool_result: %+v", resultMsg.Content[0])
	}
	if resultMsg.Content[1].ToolUseID != "toolu_2" || !resultMsg.Content[1].IsError {
		t.Errorf("expected is_error on second tool_result: %+v", resultMsg.Content[1])
	}
	if string(resultMsg.Content[0].Content) != `"result a"` {
		t.Errorf("expected JSON-encoded content, got %q", string(resultMsg.Content[0].Content))
	}
}

func TestBuildAnthropicTools(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"city": {Type: "string"},
		},
		Required:             []string{"city"},
		AdditionalProperties: false,
	}

	tools := buildAnthropicTools([]ai.ToolDescription{
		{Name: "get_weather", Description: "Returns current weather.", Parameters: schema},
		{Name: "noop", Description: "Does nothing useful."},
	})

	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Name != "get_weather" || len(tools[0].InputSchema) == 0 {
		t.Errorf("unexpected first tool: %+v", tools[0])
	}
	if string(tools[1].InputSchema) != `{"type":"object","properties":{}}` {
		t.Errorf("expected empty object schema fallback, got %s", tools[1].InputSchema)
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"tool_use":      "tool_calls",
		"max_tokens":    "length",
		"":              "stop",
		"unknown":       "stop",
	}
	for input, want := range cases {
		if got := mapStopReason(input); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", input, got, want)
		}
	}
}

package anthropic

import (
	"encoding/json"

	"github.com/leofalp/toolchat/providers/ai"
)

// requestToAnthropic converts an ai.ChatRequest into an anthropicRequest ready
// to POST to the Messages API. GenerationConfig fields are optional; a default
// max_tokens is applied when absent because Anthropic requires one on every
// request.
func requestToAnthropic(request ai.ChatRequest) anthropicRequest {
	system, history := extractSystem(request)

	req := anthropicRequest{
		Model:    request.Model,
		Messages: buildMessages(history),
		System:   system,
	}

	maxTokens := defaultMaxTokens
	if request.GenerationConfig != nil {
		cfg := request.GenerationConfig

		if cfg.Temperature > 0 {
			temp := float64(cfg.Temperature)
			req.Temperature = &temp
		}
		if cfg.MaxTokens > 0 {
			maxTokens = cfg.MaxTokens
		}
	}
	req.MaxTokens = maxTokens

	req.Tools = buildAnthropicTools(request.Tools)

	return req
}

// extractSystem determines the system prompt for the request. An explicit
// SystemPrompt wins; otherwise a leading system message in the history is
// hoisted into the top-level system field, which is the only place Anthropic
// accepts system instructions.
func extractSystem(request ai.ChatRequest) (string, []ai.Message) {
	if request.SystemPrompt != "" {
		return request.SystemPrompt, request.Messages
	}
	if len(request.Messages) > 0 && request.Messages[0].Role == ai.RoleSystem {
		return request.Messages[0].Content, request.Messages[1:]
	}
	return "", request.Messages
}

// buildMessages converts a slice of ai.Message into Anthropic message objects.
//
// Anthropic requires strictly alternating user/assistant turns. Consecutive
// tool-result messages (ai.RoleTool) are therefore merged into a single user
// message with multiple tool_result content blocks, which is the only layout
// the API accepts.
func buildMessages(messages []ai.Message) []anthropicMessage {
	var result []anthropicMessage

	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleUser:
			result = append(result, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: msg.Content}},
			})

		case ai.RoleAssistant:
			assistantMsg := anthropicMessage{Role: "assistant"}

			if msg.Content != "" {
				assistantMsg.Content = append(assistantMsg.Content, anthropicContentBlock{
					Type: "text",
					Text: msg.Content,
				})
			}

			// Tool calls are represented as tool_use blocks.
			for _, toolCall := range msg.ToolCalls {
				input := toolCall.Function.Arguments
				if input == "" {
					input = "{}"
				}
				assistantMsg.Content = append(assistantMsg.Content, anthropicContentBlock{
					Type:  "tool_use",
					ID:    toolCall.ID,
					Name:  toolCall.Function.Name,
					Input: json.RawMessage(input),
				})
			}

			if len(assistantMsg.Content) > 0 {
				result = append(result, assistantMsg)
			}

		case ai.RoleTool:
			// Marshal the tool result content as a JSON string so Anthropic
			// receives a well-formed JSON value in the content field.
			toolResultContent, err := json.Marshal(msg.Content)
			if err != nil {
				toolResultContent = []byte(`""`)
			}

			toolResultBlock := anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   toolResultContent,
				IsError:   msg.IsError,
			}

			// Merge consecutive tool results into a single user message.
			// Anthropic forbids two consecutive user turns, so multiple tool
			// responses must be combined into one message.
			if len(result) > 0 && isAllToolResults(result[len(result)-1]) {
				result[len(result)-1].Content = append(result[len(result)-1].Content, toolResultBlock)
			} else {
				result = append(result, anthropicMessage{
					Role:    "user",
					Content: []anthropicContentBlock{toolResultBlock},
				})
			}

		case ai.RoleSystem:
			// Mid-history system messages have no Anthropic equivalent; send
			// them as user turns to avoid a silent drop.
			result = append(result, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}

	return result
}

// isAllToolResults returns true when every content block in msg is a
// tool_result block. This identifies the last message as a mergeable
// tool-result turn so consecutive tool messages can be combined.
func isAllToolResults(msg anthropicMessage) bool {
	if msg.Role != "user" || len(msg.Content) == 0 {
		return false
	}
	for _, block := range msg.Content {
		if block.Type != "tool_result" {
			return false
		}
	}
	return true
}

// buildAnthropicTools converts the provider-agnostic ToolDescription slice to
// Anthropic tool definitions.
func buildAnthropicTools(tools []ai.ToolDescription) []anthropicTool {
	var result []anthropicTool

	for _, tool := range tools {
		toolEntry := anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
		}

		if tool.Parameters != nil {
			schemaBytes, err := json.Marshal(tool.Parameters)
			if err == nil {
				toolEntry.InputSchema = schemaBytes
			}
		}
		if toolEntry.InputSchema == nil {
			// Anthropic requires input_schema; send an empty object schema when
			// no parameters are defined so the request remains valid.
			toolEntry.InputSchema = json.RawMessage(`{"type":"object","properties":{}}`)
		}

		result = append(result, toolEntry)
	}

	return result
}

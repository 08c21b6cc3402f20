// Package openai implements ai.StreamProvider against the OpenAI
// /v1/chat/completions endpoint in streaming mode. Tool-call deltas are
// forwarded with their chunk index, and the final usage chunk (requested via
// stream_options.include_usage) is surfaced as a single usage event.
package openai

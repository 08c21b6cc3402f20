// Package anthropic implements ai.StreamProvider against Anthropic's Messages
// API in streaming mode. Tool use blocks are forwarded as indexed tool call
// deltas, thinking blocks as reasoning events, and token counters (which
// Anthropic spreads across message_start and message_delta) are surfaced as
// partial usage events that callers accumulate with ai.Usage.Add.
package anthropic

// Package ai defines the provider-agnostic chat model: messages, tool
// descriptions, token usage, the normalized streaming event model, and the
// StreamProvider interface implemented by the concrete adapters under
// providers/ai/openai and providers/ai/anthropic.
//
// Both adapters translate their wire protocol into the same StreamEvent
// sequence, so everything above this package is provider-independent.
package ai

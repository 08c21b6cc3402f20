// Package utils contains internal helpers shared by the provider adapters:
// streaming HTTP transport with SSE parsing, and tolerant JSON decoding of
// model-supplied values.
package utils

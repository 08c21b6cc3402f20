// Package tool implements the capability layer: typed producer tools, the
// chunk protocol they emit through, and an ordered registry for dispatch.
//
// A tool is a producer. Instead of returning a single string it yields a
// sequence of chunks, each of which is exactly one of three kinds:
//
//   - Text: a fragment of the result payload sent back to the model
//   - Message: a user-facing status line, forwarded live and never persisted
//   - Register: a new tool made available to the model for the next round
//
// Yielding anything else is a protocol violation and aborts the conversation.
package tool

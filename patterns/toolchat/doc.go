// Package toolchat implements the multi-round streaming tool-calling loop.
//
// A ToolChat drives a conversation against a streaming provider: each round it
// advertises the active tool set, streams the model's reply, reconstructs any
// tool calls from the streamed fragments, appends exactly one assistant
// message, executes the requested tools in order, and feeds their results back
// as tool messages. The loop terminates when a round produces no tool calls.
//
// Transient provider errors retry the round in place; fatal ones end the
// stream. Both the number of rounds and the number of retries are hard
// bounded, so a conversation can never spin forever.
package toolchat

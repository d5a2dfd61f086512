// Package memory provides bounded conversational memory for the assistant.
//
// A Conversation keeps an ordered message history and a running summary.
// When the history grows past its threshold, older messages are compressed
// into the summary and replaced by a synthetic system message:
//
//	[system: "Summary of previous conversation: ..."] + last 2 messages
//
// Architecture:
//   - Conversation: message log, summarization trigger, running summary
//   - Summarizer: text compression (LLM completion or any user implementation)
//   - Local fallback: deterministic truncation used when the Summarizer fails
//
// The summary is only ever extended, never replaced, so it grows without
// bound across many passes.
package memory

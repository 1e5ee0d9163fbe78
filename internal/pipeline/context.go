package pipeline

import (
	"attune/internal/chat"
	"attune/internal/llm"
	"attune/internal/memory"
	"attune/internal/personality"
)

// Context is the working state threaded through the four stages for one
// message. Created per message, discarded once the reply is sent.
type Context struct {
	UserID    string
	SessionID string
	Message   string

	Signal  personality.Signal
	Profile *personality.Profile

	// snapshots attached by the orchestrator before stage 1 runs
	Memory   memory.UserMemory
	Recalled []string
	History  []chat.Message

	// intermediate and final artifacts
	Prompt []llm.Message
	Raw    string
	Final  string
}

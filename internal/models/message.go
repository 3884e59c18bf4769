package models

import "time"

// Role identifies who produced a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MaxMessages is the size of a session's message window
const MaxMessages = 50

// Message is one stored turn of a session's log
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// IsConversational reports whether the role is one that belongs in a model history
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is the role/content pair submitted to the generation service
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SamplingParams are the fixed sampling settings of a generation call
type SamplingParams struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// DefaultSamplingParams mirrors the values the relay has always used
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		MaxTokens:   512,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// NowMillis returns the current time in epoch milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

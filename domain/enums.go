// Package domain defines the core domain models for the tutoring runtime.
package domain

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType distinguishes plain chat replies from structured grading replies.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeGrading MessageType = "grading"
)

// ChatMode selects the tutoring behavior for a turn.
type ChatMode string

const (
	// ModeStudy is an open-ended tutoring conversation.
	ModeStudy ChatMode = "study"
	// ModeCorrect asks the assistant to grade submitted work step by step.
	ModeCorrect ChatMode = "correct"
)

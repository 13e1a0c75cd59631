package model

type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusCleared SessionStatus = "cleared"
)

type MessageRole string

const (
	RolePlayer MessageRole = "player"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
)

// Session is one interactive session's record. GoalsMinted carries the goal
// sequence high-water mark so a later planning call continues the session's
// numbering instead of restarting at 1.
type Session struct {
	SessionID      string        `yaml:"session_id" json:"session_id"`
	Status         SessionStatus `yaml:"status" json:"status"`
	GoalsMinted    uint          `yaml:"goals_minted" json:"goals_minted"`
	TreesProcessed uint          `yaml:"trees_processed" json:"trees_processed"`
	History        []Message     `yaml:"history,omitempty" json:"history,omitempty"`
	CreatedAt      string        `yaml:"created_at" json:"created_at"`
	LastActiveAt   string        `yaml:"last_active_at" json:"last_active_at"`
}

type Message struct {
	Role    MessageRole `yaml:"role" json:"role"`
	Content string      `yaml:"content" json:"content"`
	At      string      `yaml:"at" json:"at"`
}

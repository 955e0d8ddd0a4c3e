package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a session's conversation log. Audio is only
// populated when explicitly fetched; HasAudio is always set.
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Audio     []byte    `json:"-"`
	HasAudio  bool      `json:"has_audio"`
	CreatedAt time.Time `json:"created_at"`
}

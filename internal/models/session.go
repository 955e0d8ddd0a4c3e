package models

import "time"

// Session groups the messages exchanged in one browser session.
type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

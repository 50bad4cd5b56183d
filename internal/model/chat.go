package model

import (
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Mode names the generation source a turn was produced with.
type Mode string

const (
	ModeText  Mode = "text-model"
	ModeImage Mode = "image-model"
)

func (m Mode) Valid() bool {
	return m == ModeText || m == ModeImage
}

// TitleLength is how many runes of the opening user text become the chat title.
const TitleLength = 40

// Turn is one immutable entry of a chat history. Img is only ever set on user
// turns and AIImg only on model turns.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Img       string    `json:"img,omitempty"`
	AIImg     string    `json:"ai_img,omitempty"`
	ModelUsed Mode      `json:"model_used"`
	CreatedAt time.Time `json:"created_at"`
}

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	History   []Turn    `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LastTurn returns the most recent turn, or nil for an empty history.
func (c *Chat) LastTurn() *Turn {
	if c == nil || len(c.History) == 0 {
		return nil
	}
	return &c.History[len(c.History)-1]
}

// ChatSummary is the per-user index entry for a chat.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Title derives a chat title from the opening user text.
func Title(text string) string {
	if utf8.RuneCountInString(text) <= TitleLength {
		return text
	}
	return string([]rune(text)[:TitleLength])
}

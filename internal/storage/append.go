package storage

import (
	"time"

	"mygpt-backend/internal/model"
)

// planAppend decides which turns an append request actually adds to history.
// The user turn is dropped when the last stored turn is already a user turn with
// identical text and image, so retried submits never duplicate it. Callers hold
// whatever lock makes read-then-append atomic.
func planAppend(history []model.Turn, question *model.Turn, answer model.Turn) []model.Turn {
	turns := make([]model.Turn, 0, 2)

	if question != nil && (question.Text != "" || question.Img != "") {
		dup := false
		if n := len(history); n > 0 {
			last := history[n-1]
			dup = last.Role == model.RoleUser && last.Text == question.Text && last.Img == question.Img
		}
		if !dup {
			q := *question
			q.Role = model.RoleUser
			q.AIImg = ""
			if q.CreatedAt.IsZero() {
				q.CreatedAt = time.Now()
			}
			turns = append(turns, q)
		}
	}

	answer.Role = model.RoleModel
	answer.Img = ""
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now()
	}
	return append(turns, answer)
}

func cloneChat(c *model.Chat) *model.Chat {
	out := *c
	out.History = append([]model.Turn(nil), c.History...)
	return &out
}

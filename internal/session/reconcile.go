package session

import (
	"context"
	"strings"
	"time"

	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"
)

// reconcile polls the store until answer shows up as a model turn, or the confirm
// timeout passes, then drops all optimistic state either way.
func (c *Controller) reconcile(ctx context.Context, answer string) {
	timeout := time.NewTimer(c.opts.ConfirmTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	start := time.Now()
poll:
	for {
		if c.confirmAnswer(ctx, answer) {
			logger.Debugf("chat %s: answer confirmed after %s", c.chatID, time.Since(start))
			break
		}

		select {
		case <-ticker.C:
		case <-timeout.C:
			logger.Debugf("chat %s: answer not confirmed within %s", c.chatID, c.opts.ConfirmTimeout)
			break poll
		case <-ctx.Done():
			break poll
		}
	}

	c.clearPending()
}

func (c *Controller) confirmAnswer(ctx context.Context, answer string) bool {
	chat, err := c.deps.Store.FetchChat(ctx, c.chatID)
	if err != nil {
		logger.Debugf("chat %s: confirmation fetch failed: %v", c.chatID, err)
		return false
	}

	c.setConfirmed(chat.History)
	return answerStored(chat.History, answer)
}

func (c *Controller) clearPending() {
	c.mutate(func() error {
		c.pending = pending{}
		c.state = StateIdle
		return nil
	})
}

// Message is one rendered entry; Pending marks optimistic entries not yet in the
// confirmed history.
type Message struct {
	Role      model.Role
	Text      string
	Img       string
	AIImg     string
	ModelUsed model.Mode
	Pending   bool
}

type View struct {
	Messages []Message
	// Thinking is set while the source has not produced any answer text yet.
	Thinking bool
	State    State
	Mode     model.Mode
}

// Merge decides what is rendered: every confirmed turn, then the pending question
// and answer unless an identical turn is already confirmed.
func Merge(history []model.Turn, s Snapshot) View {
	v := View{
		Messages: make([]Message, 0, len(history)+2),
		State:    s.State,
		Mode:     s.Mode,
		Thinking: s.State == StateGenerating && s.Answer == "",
	}

	for _, t := range history {
		v.Messages = append(v.Messages, Message{
			Role:      t.Role,
			Text:      t.Text,
			Img:       t.Img,
			AIImg:     t.AIImg,
			ModelUsed: t.ModelUsed,
		})
	}

	captured := s.CapturedText != "" || s.CapturedImage != ""
	if captured && !questionStored(history, s.CapturedText, s.CapturedImage) {
		v.Messages = append(v.Messages, Message{
			Role:    model.RoleUser,
			Text:    s.Question,
			Img:     s.CapturedImage,
			Pending: true,
		})
	}

	if strings.TrimSpace(s.Answer) != "" && !answerStored(history, s.Answer) && (s.Reveal || s.Busy()) {
		v.Messages = append(v.Messages, Message{
			Role:      model.RoleModel,
			Text:      s.Answer,
			AIImg:     s.GeneratedImage,
			ModelUsed: s.Mode,
			Pending:   true,
		})
	}

	return v
}

func questionStored(history []model.Turn, text, img string) bool {
	for _, t := range history {
		if t.Role != model.RoleUser {
			continue
		}
		if text != "" && t.Text != text {
			continue
		}
		if img != "" && t.Img != img {
			continue
		}
		return true
	}
	return false
}

func answerStored(history []model.Turn, answer string) bool {
	for _, t := range history {
		if t.Role == model.RoleModel && t.Text == answer {
			return true
		}
	}
	return false
}

package session

import (
	"mygpt-backend/internal/model"
)

// SetMode switches the generation source. Switching is refused while a submission
// is in flight. The streaming conversation is rebuilt from confirmed history the
// next time it is needed.
func (c *Controller) SetMode(m model.Mode) error {
	if !m.Valid() {
		return ErrInvalidMode
	}

	return c.mutate(func() error {
		if c.state != StateIdle {
			return ErrBusy
		}

		c.mode = m
		c.conv = nil
		if m == model.ModeImage {
			c.pending.answer = MsgImageModeHint
			c.pending.reveal = true
		} else {
			c.pending.answer = ""
			c.pending.reveal = false
		}
		return nil
	})
}

func (c *Controller) Mode() model.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

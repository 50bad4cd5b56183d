package session

import (
	"time"

	"mygpt-backend/internal/intent"
	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"
)

// maybeAutoRun answers a freshly created chat: exactly one confirmed turn, from
// the user, with nothing pending. It fires at most once per controller.
func (c *Controller) maybeAutoRun() {
	var (
		first model.Turn
		fire  bool
	)
	c.mutate(func() error {
		if c.autoRan || c.closed || c.state != StateIdle || c.pending.answer != "" {
			return errUnchanged
		}
		if len(c.confirmed) != 1 || c.confirmed[0].Role != model.RoleUser {
			return errUnchanged
		}

		c.autoRan = true
		first = c.confirmed[0]
		if intent.IsImageRequest(first.Text) && c.mode != model.ModeImage {
			c.mode = model.ModeImage
			c.conv = nil
		}
		c.wg.Add(1)
		fire = true
		return nil
	})
	if !fire {
		return
	}

	go func() {
		defer c.wg.Done()

		timer := time.NewTimer(c.opts.AutoRunDelay)
		defer timer.Stop()
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}

		c.autoRun(first)
	}()
}

func (c *Controller) autoRun(first model.Turn) {
	err := c.mutate(func() error {
		if c.closed {
			return ErrClosed
		}
		if c.state != StateIdle {
			return ErrBusy
		}
		c.pending.question = first.Text
		c.pending.capturedText = first.Text
		c.pending.capturedImage = first.Img
		c.state = StateSubmitting
		return nil
	})
	if err != nil {
		logger.Debugf("chat %s: auto-continuation skipped: %v", c.chatID, err)
		return
	}

	c.run(c.ctx, first.Text)
}

package session

import (
	"context"
	"errors"
	"io"
	"strings"

	"mygpt-backend/internal/intent"
	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"
)

// run drives one submission from Submitting to Idle. The caller has already moved
// the controller to Submitting.
func (c *Controller) run(ctx context.Context, text string) {
	ctx, stop := c.scope(ctx)
	defer stop()

	var (
		mode      model.Mode
		conv      Conversation
		att       *Attachment
		redirects bool
	)
	c.mutate(func() error {
		mode = c.mode
		att = c.pending.attachment
		c.pending.answer = ""
		c.pending.generatedImage = ""

		if mode == model.ModeText && intent.IsImageRequest(text) {
			c.pending.answer = MsgImageRedirect
			c.pending.reveal = true
			c.state = StateIdle
			redirects = true
			return nil
		}

		if mode == model.ModeText {
			conv = c.conversationLocked()
		} else {
			c.pending.answer = MsgImageWorking
		}
		c.state = StateGenerating
		return nil
	})
	if redirects {
		return
	}

	if mode == model.ModeImage {
		c.generateImage(ctx, text)
	} else if !c.streamText(ctx, conv, text, att) {
		return
	}

	if c.ctx.Err() != nil {
		return
	}
	c.persist(ctx, mode)
}

// streamText appends chunks to the pending answer as they arrive. It returns false
// when the request failed and the turn must not be persisted.
func (c *Controller) streamText(ctx context.Context, conv Conversation, text string, att *Attachment) bool {
	if conv == nil {
		c.failRequest(errors.New("no text source configured"))
		return false
	}

	in := model.TextInput{Text: text}
	if att != nil {
		in.Image = att.Image
	}

	stream, err := conv.SendStream(ctx, in)
	if err != nil {
		c.failRequest(err)
		return false
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.failRequest(err)
			return false
		}
		if chunk == "" {
			continue
		}

		sb.WriteString(chunk)
		answer := sb.String()
		c.mutate(func() error {
			c.pending.answer = answer
			return nil
		})
	}

	if strings.TrimSpace(sb.String()) == "" {
		logger.Warnf("chat %s: empty answer from text source", c.chatID)
		c.mutate(func() error {
			c.pending.answer = MsgEmptyAnswer
			return nil
		})
	}
	return true
}

func (c *Controller) failRequest(err error) {
	logger.WithFields(map[string]interface{}{
		"chat_id": c.chatID,
	}).Errorf("text generation failed: %v", err)

	c.mutate(func() error {
		c.pending.answer = MsgRequestFailed
		c.pending.reveal = true
		c.state = StateIdle
		return nil
	})
}

func (c *Controller) generateImage(ctx context.Context, prompt string) {
	answer, image := MsgImageFailed, ""
	if c.deps.Images == nil {
		logger.Errorf("chat %s: no image source configured", c.chatID)
	} else {
		res, err := c.deps.Images.GenerateImage(ctx, prompt)
		switch {
		case err != nil:
			logger.Errorf("chat %s: image generation failed: %v", c.chatID, err)
			answer = MsgImageOffline
		case res == nil:
		case res.Success:
			answer, image = MsgImageDone, res.ImagePath
		case res.Message != "":
			answer = res.Message
		}
	}

	c.mutate(func() error {
		c.pending.answer = answer
		c.pending.generatedImage = image
		return nil
	})
}

// persist saves the finished turn and then waits for it to be confirmed. A failed
// save is only logged; reconciliation still runs and clears the optimistic state.
func (c *Controller) persist(ctx context.Context, mode model.Mode) {
	var (
		req    model.AppendTurnsRequest
		answer string
	)
	c.mutate(func() error {
		c.pending.reveal = true
		c.state = StatePersisting

		answer = c.pending.answer
		req = model.AppendTurnsRequest{
			Answer:    answer,
			AIImg:     c.pending.generatedImage,
			ModelUsed: mode,
		}
		if !c.questionStoredLocked() {
			req.Question = c.pending.question
			req.Img = c.pending.capturedImage
		}
		return nil
	})

	if err := c.deps.Store.AppendTurns(ctx, c.chatID, req); err != nil {
		logger.WithFields(map[string]interface{}{
			"chat_id": c.chatID,
			"mode":    mode,
		}).Errorf("failed to save turn: %v", err)
	}

	c.reconcile(ctx, answer)
}

// questionStoredLocked reports whether the last confirmed turn already is the
// pending user turn.
func (c *Controller) questionStoredLocked() bool {
	n := len(c.confirmed)
	if n == 0 {
		return false
	}
	last := c.confirmed[n-1]
	return last.Role == model.RoleUser &&
		last.Text == c.pending.question &&
		last.Img == c.pending.capturedImage
}

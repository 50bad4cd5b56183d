package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"mygpt-backend/internal/model"
)

// errUnchanged aborts a mutation without notifying observers.
var errUnchanged = errors.New("unchanged")

type pending struct {
	question      string
	capturedText  string
	capturedImage string

	answer         string
	generatedImage string
	reveal         bool

	attachment *Attachment
	input      string
}

// Controller owns the optimistic state of one open chat view. All state changes go
// through mutate, one at a time; observers see every resulting snapshot in order.
// A new chat view gets a new Controller.
type Controller struct {
	chatID string
	deps   Deps
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	mode      model.Mode
	pending   pending
	confirmed []model.Turn
	conv      Conversation
	autoRan   bool
	closed    bool
	observers []func(Snapshot)

	// held while observers run so snapshots are delivered in mutation order
	notifyMu sync.Mutex
}

func New(chatID string, deps Deps, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		chatID: chatID,
		deps:   deps,
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
		mode:   model.ModeText,
	}
}

func (c *Controller) ChatID() string {
	return c.chatID
}

// OnChange registers an observer. Observers run outside the state lock but must
// not call back into mutating controller methods.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) mutate(fn func() error) error {
	c.mu.Lock()
	if err := fn(); err != nil {
		c.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	snap := c.snapshotLocked()
	observers := append([]func(Snapshot){}, c.observers...)

	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	p := c.pending
	return Snapshot{
		ChatID:         c.chatID,
		State:          c.state,
		Mode:           c.mode,
		Question:       p.question,
		CapturedText:   p.capturedText,
		CapturedImage:  p.capturedImage,
		Answer:         p.answer,
		GeneratedImage: p.generatedImage,
		Reveal:         p.reveal,
		Attachment:     p.attachment,
		Input:          p.input,
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// History returns the last confirmed history seen by the controller.
func (c *Controller) History() []model.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Turn(nil), c.confirmed...)
}

// View merges confirmed history with the optimistic state for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	history := append([]model.Turn(nil), c.confirmed...)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	return Merge(history, snap)
}

// Refresh fetches the chat and feeds it to Observe.
func (c *Controller) Refresh(ctx context.Context) error {
	chat, err := c.deps.Store.FetchChat(ctx, c.chatID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	c.Observe(chat)
	return nil
}

// Observe records a freshly fetched chat as the confirmed history and evaluates
// the auto-continuation condition.
func (c *Controller) Observe(chat *model.Chat) {
	if chat == nil {
		return
	}
	c.setConfirmed(chat.History)
	c.maybeAutoRun()
}

func (c *Controller) setConfirmed(history []model.Turn) {
	c.mutate(func() error {
		c.confirmed = append([]model.Turn(nil), history...)
		return nil
	})
}

// SetInput replaces the input buffer.
func (c *Controller) SetInput(text string) {
	c.mutate(func() error {
		c.pending.input = text
		return nil
	})
}

// Attach sets the image sent with the next submission; nil clears it.
func (c *Controller) Attach(att *Attachment) error {
	return c.mutate(func() error {
		if c.state != StateIdle {
			return ErrBusy
		}
		c.pending.attachment = att
		return nil
	})
}

// Submit sends text, plus att or the current attachment, to the active source. It
// returns once the answer is generated, persisted and reconciled. Generation
// failures are reported through the answer, not the returned error.
func (c *Controller) Submit(ctx context.Context, text string, att *Attachment) error {
	text = strings.TrimSpace(text)

	err := c.mutate(func() error {
		if c.closed {
			return ErrClosed
		}
		if c.state != StateIdle {
			return ErrBusy
		}
		if att == nil {
			att = c.pending.attachment
		}
		if text == "" && att == nil {
			return ErrEmptySubmission
		}

		c.pending.attachment = att
		c.pending.capturedText = text
		c.pending.capturedImage = ""
		if att != nil {
			c.pending.capturedImage = att.Path
		}
		c.pending.question = text
		c.pending.input = ""
		c.state = StateSubmitting
		return nil
	})
	if err != nil {
		return err
	}

	c.run(ctx, text)
	return nil
}

// Wait blocks until a scheduled auto-continuation has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close abandons the view: in-flight results are dropped and no further
// auto-continuation runs.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// scope ties a caller context to the lifetime of the view.
func (c *Controller) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) conversationLocked() Conversation {
	if c.conv == nil && c.deps.Text != nil {
		c.conv = c.deps.Text.StartChat(model.Reduce(c.confirmed))
	}
	return c.conv
}

// Package session holds the per-chat-view conversation controller: the optimistic
// question/answer state, the two generation sources behind the mode selector, and
// reconciliation of that state against the chat history confirmed by the store.
package session

import (
	"context"
	"errors"
	"time"

	"mygpt-backend/internal/model"
)

var (
	ErrBusy            = errors.New("a generation is already in progress")
	ErrEmptySubmission = errors.New("nothing to submit")
	ErrInvalidMode     = errors.New("unknown model mode")
	ErrClosed          = errors.New("session closed")
	ErrFetch           = errors.New("failed to fetch chat")
)

// ChunkStream yields answer fragments in arrival order and ends with io.EOF.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// Conversation is a streaming chat seeded with prior turns. It extends its own
// history with every exchange that completes.
type Conversation interface {
	SendStream(ctx context.Context, in model.TextInput) (ChunkStream, error)
}

type TextSource interface {
	StartChat(history []model.HistoryEntry) Conversation
}

// ImageSource reports generation failures in-band through ImageResult.Success;
// a returned error means the request itself could not be made.
type ImageSource interface {
	GenerateImage(ctx context.Context, prompt string) (*model.ImageResult, error)
}

type ChatStore interface {
	FetchChat(ctx context.Context, chatID string) (*model.Chat, error)
	AppendTurns(ctx context.Context, chatID string, req model.AppendTurnsRequest) error
}

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateGenerating
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateGenerating:
		return "generating"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// Attachment is an uploaded image. Path is the stored asset reference persisted
// with the user turn; Image is the inline payload handed to the text model.
type Attachment struct {
	Path  string
	Image *model.InlineImage
}

// Snapshot is a copy of the optimistic state taken after a mutation.
type Snapshot struct {
	ChatID string
	State  State
	Mode   model.Mode

	Question      string
	CapturedText  string
	CapturedImage string
	Submitted     bool

	Answer         string
	GeneratedImage string
	Reveal         bool

	Attachment *Attachment
	Input      string
}

func (s Snapshot) Generating() bool { return s.State == StateGenerating }

func (s Snapshot) Persisting() bool { return s.State == StatePersisting }

func (s Snapshot) Busy() bool { return s.State != StateIdle }

type Options struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	AutoRunDelay   time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 3 * time.Second
	}
	if o.AutoRunDelay <= 0 {
		o.AutoRunDelay = 100 * time.Millisecond
	}
	return o
}

// Deps are the collaborators a controller drives.
type Deps struct {
	Text   TextSource
	Images ImageSource
	Store  ChatStore
}

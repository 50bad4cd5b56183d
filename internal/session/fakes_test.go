package session

import (
	"context"
	"io"
	"sync"
	"time"

	"mygpt-backend/internal/model"
	"mygpt-backend/internal/storage"
)

const testUser = "user-1"

type fakeStream struct {
	chunks []string
	err    error
	gate   chan struct{}
	i      int
}

func (s *fakeStream) Recv() (string, error) {
	if s.gate != nil {
		<-s.gate
	}
	if s.i < len(s.chunks) {
		s.i++
		return s.chunks[s.i-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

type fakeText struct {
	mu      sync.Mutex
	chunks  []string
	sendErr error
	recvErr error
	gate    chan struct{}

	calls  int
	seeds  [][]model.HistoryEntry
	inputs []model.TextInput
}

func (f *fakeText) StartChat(history []model.HistoryEntry) Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeds = append(f.seeds, history)
	return &fakeConv{src: f}
}

func (f *fakeText) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeConv struct {
	src *fakeText
}

func (c *fakeConv) SendStream(ctx context.Context, in model.TextInput) (ChunkStream, error) {
	f := c.src
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, in)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &fakeStream{chunks: f.chunks, err: f.recvErr, gate: f.gate}, nil
}

type fakeImages struct {
	mu     sync.Mutex
	result *model.ImageResult
	err    error
	calls  int
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string) (*model.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeImages) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStore serves a chat out of a MemoryStorage. With stale set, fetches keep
// returning the chat as it was seeded.
type fakeStore struct {
	mem    *storage.MemoryStorage
	seeded model.Chat
	stale  bool

	mu      sync.Mutex
	appends []model.AppendTurnsRequest
	fetches int
}

func newFakeStore(chatID string, history ...model.Turn) *fakeStore {
	mem := storage.NewMemoryStorage()
	chat := model.Chat{ID: chatID, UserID: testUser, History: history, CreatedAt: time.Now()}
	if err := mem.CreateChat(&chat, model.ChatSummary{ID: chatID, CreatedAt: chat.CreatedAt}); err != nil {
		panic(err)
	}
	return &fakeStore{mem: mem, seeded: chat}
}

func (s *fakeStore) FetchChat(ctx context.Context, chatID string) (*model.Chat, error) {
	s.mu.Lock()
	s.fetches++
	stale := s.stale
	s.mu.Unlock()

	if stale {
		chat := s.seeded
		chat.History = append([]model.Turn(nil), s.seeded.History...)
		return &chat, nil
	}
	return s.mem.GetChat(testUser, chatID)
}

func (s *fakeStore) AppendTurns(ctx context.Context, chatID string, req model.AppendTurnsRequest) error {
	s.mu.Lock()
	s.appends = append(s.appends, req)
	s.mu.Unlock()

	var question *model.Turn
	if req.Question != "" || req.Img != "" {
		question = &model.Turn{Text: req.Question, Img: req.Img, ModelUsed: req.ModelUsed}
	}
	_, err := s.mem.AppendTurns(testUser, chatID, question, model.Turn{
		Text:      req.Answer,
		AIImg:     req.AIImg,
		ModelUsed: req.ModelUsed,
	})
	return err
}

func (s *fakeStore) Appends() []model.AppendTurnsRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AppendTurnsRequest(nil), s.appends...)
}

func (s *fakeStore) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *fakeStore) Stored() []model.Turn {
	chat, err := s.mem.GetChat(testUser, s.seeded.ID)
	if err != nil {
		panic(err)
	}
	return chat.History
}

func fastOptions() Options {
	return Options{
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 150 * time.Millisecond,
		AutoRunDelay:   10 * time.Millisecond,
	}
}

func userTurn(text string) model.Turn {
	return model.Turn{Role: model.RoleUser, Text: text, ModelUsed: model.ModeText}
}

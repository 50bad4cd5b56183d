package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mygpt-backend/internal/model"
)

func countUserTurns(history []model.Turn, text string) int {
	n := 0
	for _, t := range history {
		if t.Role == model.RoleUser && t.Text == text {
			n++
		}
	}
	return n
}

func assertCleared(t *testing.T, s Snapshot) {
	t.Helper()
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Question)
	assert.Empty(t, s.CapturedText)
	assert.Empty(t, s.CapturedImage)
	assert.Empty(t, s.Answer)
	assert.Empty(t, s.GeneratedImage)
	assert.False(t, s.Reveal)
	assert.Nil(t, s.Attachment)
}

func TestSubmitStoresUserTurnOnce(t *testing.T) {
	store := newFakeStore("chat-1", userTurn("hello"))
	text := &fakeText{chunks: []string{"Hi there"}}

	// the view never fetched the chat, so the client sends the question again
	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), "hello", nil))

	stored := store.Stored()
	assert.Equal(t, 1, countUserTurns(stored, "hello"))
	require.Len(t, stored, 2)
	assert.Equal(t, "Hi there", stored[1].Text)
}

func TestAutoRunOmitsStoredQuestion(t *testing.T) {
	store := newFakeStore("chat-1", userTurn("hello"))
	text := &fakeText{chunks: []string{"Hi"}}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background()))
	c.Wait()

	appends := store.Appends()
	require.Len(t, appends, 1)
	assert.Empty(t, appends[0].Question)
	assert.Equal(t, 1, countUserTurns(store.Stored(), "hello"))
}

func TestStreamingAnswerGrowsMonotonically(t *testing.T) {
	store := newFakeStore("chat-1")
	text := &fakeText{chunks: []string{"Hel", "lo", " world"}}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	var mu sync.Mutex
	var seen []string
	c.OnChange(func(s Snapshot) {
		if s.State != StateGenerating || s.Answer == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != s.Answer {
			seen = append(seen, s.Answer)
		}
	})

	require.NoError(t, c.Submit(context.Background(), "say hello", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, seen)

	appends := store.Appends()
	require.Len(t, appends, 1)
	assert.Equal(t, "Hello world", appends[0].Answer)
	assert.Equal(t, "say hello", appends[0].Question)
	assert.Equal(t, model.ModeText, appends[0].ModelUsed)
}

func TestEmptyStreamFallsBackToFailureMessage(t *testing.T) {
	store := newFakeStore("chat-1")
	text := &fakeText{}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	var persisting []string
	c.OnChange(func(s Snapshot) {
		if s.State == StatePersisting {
			persisting = append(persisting, s.Answer)
		}
	})

	require.NoError(t, c.Submit(context.Background(), "anything", nil))

	require.NotEmpty(t, persisting)
	assert.Equal(t, MsgEmptyAnswer, persisting[len(persisting)-1])

	appends := store.Appends()
	require.Len(t, appends, 1)
	assert.Equal(t, MsgEmptyAnswer, appends[0].Answer)
}

func TestImageIntentShortCircuits(t *testing.T) {
	store := newFakeStore("chat-1")
	text := &fakeText{chunks: []string{"never"}}
	images := &fakeImages{result: &model.ImageResult{Success: true, ImagePath: "/x.png"}}

	c := New("chat-1", Deps{Text: text, Images: images, Store: store}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), "create an image of a cat", nil))

	s := c.Snapshot()
	assert.Equal(t, MsgImageRedirect, s.Answer)
	assert.Equal(t, StateIdle, s.State)
	assert.True(t, s.Reveal)
	assert.Equal(t, 0, text.Calls())
	assert.Equal(t, 0, images.Calls())
	assert.Empty(t, store.Appends())
}

func TestReconcileClearsOnConfirmation(t *testing.T) {
	store := newFakeStore("chat-1")
	text := &fakeText{chunks: []string{"42"}}

	opts := fastOptions()
	opts.ConfirmTimeout = 5 * time.Second
	c := New("chat-1", Deps{Text: text, Store: store}, opts)
	defer c.Close()

	start := time.Now()
	require.NoError(t, c.Submit(context.Background(), "meaning of life?", nil))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, store.Fetches())
	assertCleared(t, c.Snapshot())

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, "42", history[1].Text)
}

func TestReconcileFailsOpen(t *testing.T) {
	store := newFakeStore("chat-1")
	store.stale = true
	text := &fakeText{chunks: []string{"answer"}}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	start := time.Now()
	require.NoError(t, c.Submit(context.Background(), "question", nil))

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Greater(t, store.Fetches(), 1)
	assertCleared(t, c.Snapshot())
}

func TestPersistFailureIsNotSurfaced(t *testing.T) {
	store := newFakeStore("chat-1")
	text := &fakeText{chunks: []string{"answer"}}

	// appends to an unknown chat fail inside the store
	c := New("missing", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), "question", nil))
	assertCleared(t, c.Snapshot())
}

func TestAutoRunFiresOnce(t *testing.T) {
	store := newFakeStore("chat-1", userTurn("tell me a joke"))
	store.stale = true
	text := &fakeText{chunks: []string{"knock knock"}}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	chat, err := store.FetchChat(context.Background(), "chat-1")
	require.NoError(t, err)

	c.Observe(chat)
	c.Observe(chat)
	c.Observe(chat)
	c.Wait()

	// the stale history still looks unanswered
	c.Observe(chat)
	c.Wait()

	assert.Equal(t, 1, text.Calls())
	assert.Len(t, store.Appends(), 1)
}

func TestAutoRunSwitchesToImageMode(t *testing.T) {
	store := newFakeStore("chat-1", userTurn("create an image of a red fox"))
	text := &fakeText{}
	images := &fakeImages{result: &model.ImageResult{Success: true, ImagePath: "/ai-generated/fox.png"}}

	c := New("chat-1", Deps{Text: text, Images: images, Store: store}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background()))
	c.Wait()

	assert.Equal(t, model.ModeImage, c.Mode())
	assert.Equal(t, 0, text.Calls())
	assert.Equal(t, 1, images.Calls())

	appends := store.Appends()
	require.Len(t, appends, 1)
	assert.Empty(t, appends[0].Question)
	assert.Equal(t, MsgImageDone, appends[0].Answer)
	assert.Equal(t, "/ai-generated/fox.png", appends[0].AIImg)
	assert.Equal(t, model.ModeImage, appends[0].ModelUsed)
}

func TestModeSwitchSeedsAnswer(t *testing.T) {
	c := New("chat-1", Deps{Store: newFakeStore("chat-1")}, fastOptions())
	defer c.Close()

	require.NoError(t, c.SetMode(model.ModeImage))
	s := c.Snapshot()
	assert.Equal(t, MsgImageModeHint, s.Answer)
	assert.True(t, s.Reveal)

	require.NoError(t, c.SetMode(model.ModeText))
	s = c.Snapshot()
	assert.Empty(t, s.Answer)
	assert.False(t, s.Reveal)

	assert.ErrorIs(t, c.SetMode("dall-e"), ErrInvalidMode)
}

func TestImageGeneration(t *testing.T) {
	tests := []struct {
		name      string
		result    *model.ImageResult
		err       error
		answer    string
		generated string
	}{
		{"success", &model.ImageResult{Success: true, ImagePath: "/img.png"}, nil, MsgImageDone, "/img.png"},
		{"reported failure", &model.ImageResult{Success: false, Message: "quota exceeded"}, nil, "quota exceeded", ""},
		{"silent failure", &model.ImageResult{Success: false}, nil, MsgImageFailed, ""},
		{"request error", nil, errors.New("connection refused"), MsgImageOffline, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore("chat-1")
			images := &fakeImages{result: tt.result, err: tt.err}

			c := New("chat-1", Deps{Images: images, Store: store}, fastOptions())
			defer c.Close()
			require.NoError(t, c.SetMode(model.ModeImage))

			var first string
			c.OnChange(func(s Snapshot) {
				if first == "" && s.State == StateGenerating {
					first = s.Answer
				}
			})

			require.NoError(t, c.Submit(context.Background(), "a lighthouse at dusk", nil))

			assert.Equal(t, MsgImageWorking, first)
			appends := store.Appends()
			require.Len(t, appends, 1)
			assert.Equal(t, tt.answer, appends[0].Answer)
			assert.Equal(t, tt.generated, appends[0].AIImg)
			assert.Equal(t, "a lighthouse at dusk", appends[0].Question)
		})
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	store := newFakeStore("chat-1")
	gate := make(chan struct{})
	text := &fakeText{chunks: []string{"slow"}, gate: gate}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.Submit(context.Background(), "first", nil)
	}()

	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateGenerating
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, c.Submit(context.Background(), "second", nil), ErrBusy)
	assert.ErrorIs(t, c.SetMode(model.ModeImage), ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, text.Calls())
	assert.Len(t, store.Appends(), 1)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	c := New("chat-1", Deps{Text: &fakeText{}, Store: newFakeStore("chat-1")}, fastOptions())
	defer c.Close()

	assert.ErrorIs(t, c.Submit(context.Background(), "   ", nil), ErrEmptySubmission)
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestSubmitWithAttachment(t *testing.T) {
	store := newFakeStore("chat-1")
	text := &fakeText{chunks: []string{"a cat"}}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	img := &model.InlineImage{MIMEType: "image/png", Data: []byte{1, 2, 3}}
	require.NoError(t, c.Attach(&Attachment{Path: "/uploads/cat.png", Image: img}))
	require.NoError(t, c.Submit(context.Background(), "what is this?", nil))

	require.Len(t, text.inputs, 1)
	assert.Equal(t, img, text.inputs[0].Image)

	appends := store.Appends()
	require.Len(t, appends, 1)
	assert.Equal(t, "/uploads/cat.png", appends[0].Img)
	assert.Nil(t, c.Snapshot().Attachment)
}

func TestStreamErrorIsNotPersisted(t *testing.T) {
	store := newFakeStore("chat-1")
	text := &fakeText{sendErr: errors.New("upstream unavailable")}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), "hello", nil))

	s := c.Snapshot()
	assert.Equal(t, MsgRequestFailed, s.Answer)
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, store.Appends())
}

func TestConversationSeededFromConfirmedHistory(t *testing.T) {
	store := newFakeStore("chat-1",
		userTurn("first"),
		model.Turn{Role: model.RoleModel, Text: "reply", ModelUsed: model.ModeText},
	)
	text := &fakeText{chunks: []string{"ok"}}

	c := New("chat-1", Deps{Text: text, Store: store}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.Submit(context.Background(), "second", nil))

	require.Len(t, text.seeds, 1)
	assert.Equal(t, []model.HistoryEntry{
		{Role: model.RoleUser, Text: "first"},
		{Role: model.RoleModel, Text: "reply"},
	}, text.seeds[0])

	// a mode round trip rebuilds the conversation from the newer history
	require.NoError(t, c.SetMode(model.ModeImage))
	require.NoError(t, c.SetMode(model.ModeText))
	require.NoError(t, c.Submit(context.Background(), "third", nil))
	require.Len(t, text.seeds, 2)
	assert.Len(t, text.seeds[1], 4)
}

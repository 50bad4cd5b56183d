package client

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"mygpt-backend/internal/assets"
	"mygpt-backend/internal/auth"
	"mygpt-backend/internal/config"
	"mygpt-backend/internal/handler"
	"mygpt-backend/internal/model"
	"mygpt-backend/internal/service"
	"mygpt-backend/internal/session"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoStreamer struct {
	mu       sync.Mutex
	requests []model.GenerateTextRequest
	fail     error
}

// Stream answers "echo: <text>" in two chunks.
func (e *echoStreamer) Stream(ctx context.Context, req model.GenerateTextRequest) (*schema.StreamReader[*schema.Message], error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	fail := e.fail
	e.mu.Unlock()

	reader, writer := schema.Pipe[*schema.Message](3)
	writer.Send(schema.AssistantMessage("echo: ", nil), nil)
	if fail != nil {
		writer.Send(nil, fail)
	} else {
		writer.Send(schema.AssistantMessage(req.Text, nil), nil)
	}
	writer.Close()
	return reader, nil
}

func (e *echoStreamer) setFail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

func (e *echoStreamer) Requests() []model.GenerateTextRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.GenerateTextRequest(nil), e.requests...)
}

type staticImages struct{}

func (staticImages) Generate(ctx context.Context, req model.GenerateImageRequest) model.ImageResult {
	return model.ImageResult{Success: true, ImagePath: "/ai-generated/cloudflare/fox.png", Prompt: req.Prompt}
}

type backend struct {
	client *Client
	text   *echoStreamer
	auth   *auth.Manager
	url    string
}

func newBackend(t *testing.T) *backend {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "development"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Assets: config.AssetsConfig{URLPrefix: "/assets", MaxUpload: 1 << 20},
	}

	store := assets.NewStore(t.TempDir(), cfg.Assets.URLPrefix)
	require.NoError(t, store.Init())
	chats := service.NewChatService(&config.Config{Storage: config.StorageConfig{Type: "memory"}})
	t.Cleanup(func() { chats.Close() })

	b := &backend{text: &echoStreamer{}, auth: auth.NewManager("secret", time.Hour)}
	router := handler.NewRouter(cfg, handler.Services{
		Chats:  chats,
		Text:   b.text,
		Images: staticImages{},
		Assets: store,
		Signer: assets.NewSigner("pub", "priv", time.Minute),
		Auth:   b.auth,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	b.url = srv.URL

	token, err := b.auth.GenerateToken("alice")
	require.NoError(t, err)
	b.client = New(config.ClientConfig{BaseURL: srv.URL, Token: token, Timeout: 5 * time.Second})
	return b
}

func TestChatStoreRoundTrip(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	id, err := b.client.CreateChat(ctx, model.CreateChatRequest{Text: "hello"})
	require.NoError(t, err)

	require.NoError(t, b.client.AppendTurns(ctx, id, model.AppendTurnsRequest{Question: "hello", Answer: "hi"}))

	chat, err := b.client.FetchChat(ctx, id)
	require.NoError(t, err)
	require.Len(t, chat.History, 2)
	assert.Equal(t, "hi", chat.History[1].Text)

	summaries, err := b.client.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)

	_, err = b.client.FetchChat(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestUnauthorizedClient(t *testing.T) {
	b := newBackend(t)
	anon := New(config.ClientConfig{BaseURL: b.url, Timeout: time.Second})

	_, err := anon.ListChats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func drain(t *testing.T, s session.ChunkStream) string {
	var sb strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String()
		}
		require.NoError(t, err)
		sb.WriteString(chunk)
	}
}

func TestConversationGrowsHistory(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	conv := b.client.StartChat([]model.HistoryEntry{{Role: model.RoleUser, Text: "earlier"}, {Role: model.RoleModel, Text: "reply"}})

	s, err := conv.SendStream(ctx, model.TextInput{Text: "one"})
	require.NoError(t, err)
	assert.Equal(t, "echo: one", drain(t, s))
	require.NoError(t, s.Close())

	s, err = conv.SendStream(ctx, model.TextInput{Text: "two", Image: &model.InlineImage{MIMEType: "image/png", Data: []byte{1}}})
	require.NoError(t, err)
	assert.Equal(t, "echo: two", drain(t, s))
	s.Close()

	reqs := b.text.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].History, 2)
	require.Len(t, reqs[1].History, 4)
	assert.Equal(t, model.HistoryEntry{Role: model.RoleModel, Text: "echo: one"}, reqs[1].History[3])
	require.NotNil(t, reqs[1].Image)
	assert.Equal(t, []byte{1}, reqs[1].Image.Data)
}

func TestConversationStreamError(t *testing.T) {
	b := newBackend(t)
	b.text.setFail(errors.New("model overloaded"))

	conv := b.client.StartChat(nil)
	s, err := conv.SendStream(context.Background(), model.TextInput{Text: "hi"})
	require.NoError(t, err)
	defer s.Close()

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "echo: ", chunk)

	_, err = s.Recv()
	assert.ErrorContains(t, err, "model overloaded")

	// a failed exchange is not added to the history
	b.text.setFail(nil)
	s2, err := conv.SendStream(context.Background(), model.TextInput{Text: "again"})
	require.NoError(t, err)
	drain(t, s2)
	s2.Close()

	reqs := b.text.Requests()
	assert.Empty(t, reqs[1].History)
}

func TestGenerateImage(t *testing.T) {
	b := newBackend(t)

	res, err := b.client.GenerateImage(context.Background(), "a fox")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "/ai-generated/cloudflare/fox.png", res.ImagePath)
}

func TestUploadAndAttach(t *testing.T) {
	b := newBackend(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	asset, err := b.client.Upload(context.Background(), "photo.png", png)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.FilePath, "/uploads/"))

	path := t.TempDir() + "/pic.png"
	require.NoError(t, writeFile(path, png))
	att, err := b.client.AttachFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(att.Path, "-pic.png"))
	assert.Equal(t, "image/png", att.Image.MIMEType)

	textPath := t.TempDir() + "/notes.txt"
	require.NoError(t, writeFile(textPath, []byte("plain words")))
	_, err = b.client.AttachFile(context.Background(), textPath)
	assert.Error(t, err)
}

func TestSessionOverHTTP(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	id, err := b.client.CreateChat(ctx, model.CreateChatRequest{Text: "hello"})
	require.NoError(t, err)

	ctrl := session.New(id, session.Deps{Text: b.client, Images: b.client, Store: b.client}, session.Options{
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: time.Second,
		AutoRunDelay:   5 * time.Millisecond,
	})
	defer ctrl.Close()

	// a fresh chat continues on its own
	require.NoError(t, ctrl.Refresh(ctx))
	ctrl.Wait()

	require.NoError(t, ctrl.Submit(ctx, "second", nil))

	chat, err := b.client.FetchChat(ctx, id)
	require.NoError(t, err)
	require.Len(t, chat.History, 4)
	assert.Equal(t, "hello", chat.History[0].Text)
	assert.Equal(t, "echo: hello", chat.History[1].Text)
	assert.Equal(t, "second", chat.History[2].Text)
	assert.Equal(t, "echo: second", chat.History[3].Text)

	snap := ctrl.Snapshot()
	assert.Equal(t, session.StateIdle, snap.State)
	assert.Empty(t, snap.Answer)
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"mygpt-backend/internal/model"
	"mygpt-backend/internal/session"
	"mygpt-backend/internal/utils"
)

// StartChat opens a conversation seeded with history. The conversation keeps
// its own copy and grows it with every exchange that streams to completion.
func (c *Client) StartChat(history []model.HistoryEntry) session.Conversation {
	return &conversation{
		client:  c,
		history: append([]model.HistoryEntry(nil), history...),
	}
}

type conversation struct {
	client *Client

	mu      sync.Mutex
	history []model.HistoryEntry
}

func (cv *conversation) snapshot() []model.HistoryEntry {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return append([]model.HistoryEntry(nil), cv.history...)
}

func (cv *conversation) record(question, answer string) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	// an auto-continued chat was seeded with the question already
	if n := len(cv.history); n == 0 || cv.history[n-1] != (model.HistoryEntry{Role: model.RoleUser, Text: question}) {
		cv.history = append(cv.history, model.HistoryEntry{Role: model.RoleUser, Text: question})
	}
	cv.history = append(cv.history, model.HistoryEntry{Role: model.RoleModel, Text: answer})
}

func (cv *conversation) SendStream(ctx context.Context, in model.TextInput) (session.ChunkStream, error) {
	data, err := json.Marshal(model.GenerateTextRequest{History: cv.snapshot(), TextInput: in})
	if err != nil {
		return nil, err
	}

	req, err := cv.client.newRequest(ctx, http.MethodPost, "/api/generate-text", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := cv.client.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate-text: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return &chunkStream{
		conv:     cv,
		question: in.Text,
		body:     resp.Body,
		events:   utils.NewSSEReader(resp.Body),
	}, nil
}

type chunkStream struct {
	conv     *conversation
	question string
	body     io.ReadCloser
	events   *utils.SSEReader

	answer strings.Builder
	done   bool
}

// Recv returns the next answer fragment. io.EOF means the answer is complete.
func (s *chunkStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		ev, err := s.events.Next()
		if errors.Is(err, io.EOF) {
			// the server always ends with a done event
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}

		switch {
		case ev.Done():
			s.done = true
			s.conv.record(s.question, s.answer.String())
			return "", io.EOF

		case ev.Event == utils.EventError:
			var e model.ErrorResponse
			if json.Unmarshal([]byte(ev.Data), &e) != nil || e.Error == "" {
				e.Error = ev.Data
			}
			s.done = true
			return "", fmt.Errorf("stream failed: %s %s", e.Error, e.Message)

		case ev.Event == utils.EventChunk || ev.Event == "":
			var chunk model.StreamChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				return "", fmt.Errorf("decoding chunk: %w", err)
			}
			if chunk.Text == "" {
				continue
			}
			s.answer.WriteString(chunk.Text)
			return chunk.Text, nil
		}
	}
}

func (s *chunkStream) Close() error {
	return s.body.Close()
}

// Package client talks to the mygpt backend over HTTP. A Client is the chat
// store and both generation sources a session controller needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"mygpt-backend/internal/config"
	"mygpt-backend/internal/model"
	"mygpt-backend/internal/session"
	"mygpt-backend/internal/utils"
)

var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
}

var (
	_ session.ChatStore   = (*Client)(nil)
	_ session.TextSource  = (*Client)(nil)
	_ session.ImageSource = (*Client)(nil)
)

func New(cfg config.ClientConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    utils.NewHTTPClient(cfg.Timeout),
		// streams last as long as the model keeps talking
		stream: utils.NewHTTPClient(0),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e model.ErrorResponse
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		msg = e.Error
		if e.Message != "" {
			msg += ": " + e.Message
		}
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) FetchChat(ctx context.Context, chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) AppendTurns(ctx context.Context, chatID string, req model.AppendTurnsRequest) error {
	return c.doJSON(ctx, http.MethodPut, "/api/chats/"+url.PathEscape(chatID), req, nil)
}

func (c *Client) CreateChat(ctx context.Context, req model.CreateChatRequest) (string, error) {
	var resp model.CreateChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chats", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	var summaries []model.ChatSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/userchats", nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// GenerateImage reports provider failures through the result; only transport and
// HTTP errors come back as err.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*model.ImageResult, error) {
	var res model.ImageResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/generate-image", model.GenerateImageRequest{Prompt: prompt}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AssetURL resolves a stored asset path against the backend.
func (c *Client) AssetURL(prefix, path string) string {
	return c.baseURL + strings.TrimRight(prefix, "/") + path
}

package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mygpt-backend/internal/config"
	"mygpt-backend/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
)

// NewTextModel builds the streaming chat model selected by cfg.Text.Provider.
func NewTextModel(ctx context.Context, cfg *config.Config) (einoModel.ChatModel, error) {
	switch cfg.Text.Provider {
	case "gemini", "":
		return newGeminiChatModel(ctx, cfg.Gemini)
	case "openai":
		return newOpenAIChatModel(ctx, cfg.OpenAI)
	case "doubao":
		return createDoubaoModel(ctx, cfg.Doubao)
	case "qwen":
		return createQwenModel(ctx, cfg.Qwen)
	default:
		return nil, fmt.Errorf("unsupported text provider: %s", cfg.Text.Provider)
	}
}

func maskKey(key string) string {
	if len(key) > 6 {
		return key[:6] + "..."
	}
	return "***"
}

func createDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) (einoModel.ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("doubao api key is not configured")
	}
	logger.Infof("Using Doubao model %s (key %s)", cfg.Model, maskKey(cfg.APIKey))

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create doubao model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.QwenConfig) (einoModel.ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("qwen api key is not configured")
	}
	logger.Infof("Using Qwen model %s at %s (key %s)", cfg.Model, cfg.BaseURL, maskKey(cfg.APIKey))

	httpClient := &http.Client{
		Transport: NewDebugTransport(nil, cfg.DebugRequest),
		Timeout:   cfg.Timeout,
	}

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		Timeout:     cfg.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qwen model: %w", err)
	}
	return chatModel, nil
}

// DebugTransport logs outgoing provider requests with credentials redacted.
type DebugTransport struct {
	base    http.RoundTripper
	enabled bool
}

func NewDebugTransport(base http.RoundTripper, enabled bool) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, enabled: enabled}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.enabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.enabled {
		logger.Errorf("🚨 [provider debug] request to %s failed: %v", req.URL.Host, err)
	}
	return resp, err
}

func (t *DebugTransport) logRequest(req *http.Request) {
	headers := make([]string, 0, len(req.Header))
	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			headers = append(headers, name+"=[REDACTED]")
			continue
		}
		headers = append(headers, name+"="+strings.Join(values, ","))
	}

	entry := logger.WithFields(map[string]interface{}{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": strings.Join(headers, "; "),
	})

	if req.Body == nil {
		entry.Debug("🔍 [provider debug] request")
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		entry.Errorf("🚨 [provider debug] failed to read request body: %v", err)
		return
	}
	// restore the body for the real round trip
	req.Body = io.NopCloser(bytes.NewReader(body))

	entry.WithField("body_bytes", len(body)).Debugf("🔍 [provider debug] %s", string(body))
}

func isSensitiveHeader(name string) bool {
	for _, h := range []string{"Authorization", "X-Api-Key", "X-Auth-Token", "Cookie"} {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

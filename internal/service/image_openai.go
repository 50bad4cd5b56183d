package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"mygpt-backend/internal/config"

	"github.com/sashabaranov/go-openai"
)

var ErrOpenAIImageKey = errors.New("openai api key is not configured")

type openaiImageGenerator struct {
	client *openai.Client
	model  string
}

func newOpenAIImageGenerator(cfg config.OpenAIConfig) (*openaiImageGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrOpenAIImageKey
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openaiImageGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.ImageModel,
	}, nil
}

func (g *openaiImageGenerator) Provider() string { return "OpenAI" }

func (g *openaiImageGenerator) ModelID() string { return "openai-" + g.model }

func (g *openaiImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("creating image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no image data received from OpenAI")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return data, nil
}

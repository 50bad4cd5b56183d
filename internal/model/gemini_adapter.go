package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"mygpt-backend/internal/config"
	"mygpt-backend/pkg/logger"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type geminiChatModel struct {
	client *genai.Client
	model  string
}

func newGeminiChatModel(ctx context.Context, cfg config.GeminiConfig) (*geminiChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	logger.Infof("Using Gemini model %s", cfg.Model)

	return &geminiChatModel{client: client, model: cfg.Model}, nil
}

// Close releases the underlying gRPC connection.
func (m *geminiChatModel) Close() error {
	return m.client.Close()
}

// prepare splits eino messages into a chat session seeded with history and the
// parts of the final user message.
func (m *geminiChatModel) prepare(messages []*schema.Message) (*genai.ChatSession, []genai.Part, error) {
	gm := m.client.GenerativeModel(m.model)

	var history []*genai.Content
	for _, msg := range messages {
		if msg.Role == schema.System {
			gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}}
			continue
		}
		role := "user"
		if msg.Role == schema.Assistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: toGeminiParts(msg)})
	}

	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return nil, nil, errors.New("last message is not from the user")
	}

	last := history[len(history)-1]
	cs := gm.StartChat()
	cs.History = history[:len(history)-1]
	return cs, last.Parts, nil
}

func (m *geminiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	cs, parts, err := m.prepare(messages)
	if err != nil {
		return nil, err
	}

	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini SendMessage failed: %w", err)
	}

	return &schema.Message{Role: schema.Assistant, Content: responseText(resp)}, nil
}

func (m *geminiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	cs, parts, err := m.prepare(messages)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, parts...)
	reader, writer := schema.Pipe[*schema.Message](100)

	go func() {
		defer writer.Close()

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				writer.Send(nil, fmt.Errorf("gemini stream failed: %w", err))
				return
			}

			text := responseText(resp)
			if text == "" {
				continue
			}
			if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: text}, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

func (m *geminiChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func toGeminiParts(msg *schema.Message) []genai.Part {
	if len(msg.MultiContent) == 0 {
		return []genai.Part{genai.Text(msg.Content)}
	}

	parts := make([]genai.Part, 0, len(msg.MultiContent))
	for _, p := range msg.MultiContent {
		switch p.Type {
		case schema.ChatMessagePartTypeText:
			parts = append(parts, genai.Text(p.Text))
		case schema.ChatMessagePartTypeImageURL:
			if p.ImageURL == nil {
				continue
			}
			if mime, data, ok := ParseDataURI(p.ImageURL.URL); ok {
				parts = append(parts, genai.Blob{MIMEType: mime, Data: data})
			}
		}
	}
	return parts
}

// DataURI encodes an inline image as a data: URL.
func DataURI(img *InlineImage) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func ParseDataURI(uri string) (string, []byte, bool) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, false
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return mime, data, true
}

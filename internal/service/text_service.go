package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mygpt-backend/internal/config"
	"mygpt-backend/internal/model"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var ErrEmptyPrompt = errors.New("prompt text or image is required")

// TextService streams answers from the configured chat model.
type TextService struct {
	model        einoModel.ChatModel
	systemPrompt string
	maxHistory   int
}

func NewTextService(cm einoModel.ChatModel, cfg config.TextConfig) *TextService {
	return &TextService{
		model:        cm,
		systemPrompt: cfg.SystemPrompt,
		maxHistory:   cfg.MaxHistoryMessages,
	}
}

// Stream sends the prior turns plus the new input and returns the answer stream.
func (s *TextService) Stream(ctx context.Context, req model.GenerateTextRequest) (*schema.StreamReader[*schema.Message], error) {
	if strings.TrimSpace(req.Text) == "" && req.Image == nil {
		return nil, ErrEmptyPrompt
	}

	stream, err := s.model.Stream(ctx, s.buildMessages(req))
	if err != nil {
		return nil, fmt.Errorf("failed to start text stream: %w", err)
	}
	return stream, nil
}

func (s *TextService) buildMessages(req model.GenerateTextRequest) []*schema.Message {
	history := normalizeHistory(req.History, req.Text)
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
		// providers expect the conversation to open with a user turn
		for len(history) > 0 && history[0].Role != model.RoleUser {
			history = history[1:]
		}
	}

	messages := make([]*schema.Message, 0, len(history)+2)
	if s.systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(s.systemPrompt))
	}
	for _, h := range history {
		if h.Role == model.RoleModel {
			messages = append(messages, schema.AssistantMessage(h.Text, nil))
		} else {
			messages = append(messages, schema.UserMessage(h.Text))
		}
	}

	return append(messages, userInput(req.TextInput))
}

func userInput(in model.TextInput) *schema.Message {
	if in.Image == nil {
		return schema.UserMessage(in.Text)
	}

	msg := &schema.Message{Role: schema.User}
	if in.Text != "" {
		msg.MultiContent = append(msg.MultiContent, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: in.Text,
		})
	}
	msg.MultiContent = append(msg.MultiContent, schema.ChatMessagePart{
		Type:     schema.ChatMessagePartTypeImageURL,
		ImageURL: &schema.ChatMessageImageURL{URL: model.DataURI(in.Image)},
	})
	return msg
}

// normalizeHistory joins runs of the same role so roles alternate. A trailing user
// entry equal to the new input is dropped because the input follows it.
func normalizeHistory(history []model.HistoryEntry, input string) []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, len(history))
	for _, h := range history {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		role := model.RoleUser
		if h.Role == model.RoleModel {
			role = model.RoleModel
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Text += "\n\n" + h.Text
			continue
		}
		out = append(out, model.HistoryEntry{Role: role, Text: h.Text})
	}

	if n := len(out); n > 0 && out[n-1].Role == model.RoleUser && out[n-1].Text == input {
		out = out[:n-1]
	}

	for len(out) > 0 && out[0].Role != model.RoleUser {
		out = out[1:]
	}
	return out
}

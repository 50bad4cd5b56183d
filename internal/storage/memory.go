package storage

import (
	"sync"
	"time"

	"mygpt-backend/internal/model"
)

type MemoryStorage struct {
	chats     map[string]*model.Chat
	summaries map[string][]model.ChatSummary
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		chats:     make(map[string]*model.Chat),
		summaries: make(map[string][]model.ChatSummary),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) CreateChat(chat *model.Chat, summary model.ChatSummary) error {
	if chat.ID == "" || chat.UserID == "" {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats[chat.ID] = cloneChat(chat)
	m.summaries[chat.UserID] = append(m.summaries[chat.UserID], summary)
	return nil
}

func (m *MemoryStorage) GetChat(userID, chatID string) (*model.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, exists := m.chats[chatID]
	if !exists || chat.UserID != userID {
		return nil, ErrChatNotFound
	}

	return cloneChat(chat), nil
}

func (m *MemoryStorage) AppendTurns(userID, chatID string, question *model.Turn, answer model.Turn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, exists := m.chats[chatID]
	if !exists || chat.UserID != userID {
		return 0, ErrChatNotFound
	}

	turns := planAppend(chat.History, question, answer)
	chat.History = append(chat.History, turns...)
	chat.UpdatedAt = time.Now()
	return len(turns), nil
}

func (m *MemoryStorage) ListSummaries(userID string) ([]model.ChatSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]model.ChatSummary{}, m.summaries[userID]...), nil
}

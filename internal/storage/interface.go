package storage

import (
	"mygpt-backend/internal/model"
)

// Storage is the durable chat store. Every chat read or write is scoped by the
// owning user id; a chat owned by someone else is reported as ErrChatNotFound.
type Storage interface {
	// chats
	CreateChat(chat *model.Chat, summary model.ChatSummary) error
	GetChat(userID, chatID string) (*model.Chat, error)
	AppendTurns(userID, chatID string, question *model.Turn, answer model.Turn) (int, error)

	// per-user index
	ListSummaries(userID string) ([]model.ChatSummary, error)

	Init() error
	Close() error
	Backup() error
}

package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mygpt-backend/internal/config"
	"mygpt-backend/internal/model"
	"mygpt-backend/internal/storage"
	"mygpt-backend/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrEmptyChat   = errors.New("a chat needs opening text or an image")
	ErrInvalidTurn = errors.New("invalid turns")
)

type ChatService struct {
	storage storage.Storage
	config  *config.StorageConfig

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewChatService(cfg *config.Config) *ChatService {
	store := newStorage(cfg.Storage)

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize %s storage, falling back to memory: %v", cfg.Storage.Type, err)
		store = storage.NewMemoryStorage()
		store.Init()
	}

	return newChatService(store, &cfg.Storage)
}

// newChatService wraps an initialized store.
func newChatService(store storage.Storage, cfg *config.StorageConfig) *ChatService {
	cs := &ChatService{
		storage: store,
		config:  cfg,
		stop:    make(chan struct{}),
	}

	if cfg.BackupInterval > 0 {
		cs.wg.Add(1)
		go cs.backupLoop(cfg.BackupInterval)
	}

	return cs
}

func newStorage(cfg config.StorageConfig) storage.Storage {
	switch cfg.Type {
	case "disk":
		return storage.NewDiskStorage(cfg.DataDir, cfg.CacheSize)
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Join(cfg.DataDir, "mygpt.db")
		}
		return storage.NewSQLStorage(storage.DialectSQLite, dsn)
	case "postgres":
		return storage.NewSQLStorage(storage.DialectPostgres, cfg.DSN)
	default:
		return storage.NewMemoryStorage()
	}
}

// CreateChat stores a chat whose history is the single opening user turn, together
// with its summary, and returns the new id.
func (s *ChatService) CreateChat(userID string, req model.CreateChatRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Img == "" {
		return "", ErrEmptyChat
	}

	now := time.Now()
	chat := &model.Chat{
		ID:     uuid.New().String(),
		UserID: userID,
		History: []model.Turn{{
			Role:      model.RoleUser,
			Text:      text,
			Img:       req.Img,
			ModelUsed: model.ModeText,
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	summary := model.ChatSummary{
		ID:        chat.ID,
		Title:     model.Title(text),
		CreatedAt: now,
	}

	if err := s.storage.CreateChat(chat, summary); err != nil {
		return "", fmt.Errorf("failed to create chat: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"chat_id": chat.ID,
		"user_id": userID,
	}).Info("Chat created")

	return chat.ID, nil
}

func (s *ChatService) GetChat(userID, chatID string) (*model.Chat, error) {
	chat, err := s.storage.GetChat(userID, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// AppendTurns adds the optional question and the answer to a chat. The store drops
// the question when the chat already ends with the same user turn.
func (s *ChatService) AppendTurns(userID, chatID string, req model.AppendTurnsRequest) (int, error) {
	if req.Answer == "" {
		return 0, fmt.Errorf("%w: answer is required", ErrInvalidTurn)
	}

	mode := req.ModelUsed
	if mode == "" {
		mode = model.ModeText
	}
	if !mode.Valid() {
		return 0, fmt.Errorf("%w: unknown model %q", ErrInvalidTurn, mode)
	}

	now := time.Now()
	var question *model.Turn
	if req.Question != "" || req.Img != "" {
		question = &model.Turn{
			Role:      model.RoleUser,
			Text:      req.Question,
			Img:       req.Img,
			ModelUsed: mode,
			CreatedAt: now,
		}
	}
	answer := model.Turn{
		Role:      model.RoleModel,
		Text:      req.Answer,
		AIImg:     req.AIImg,
		ModelUsed: mode,
		CreatedAt: now,
	}

	n, err := s.storage.AppendTurns(userID, chatID, question, answer)
	if err != nil {
		return 0, fmt.Errorf("failed to append turns: %w", err)
	}
	return n, nil
}

func (s *ChatService) ListChats(userID string) ([]model.ChatSummary, error) {
	summaries, err := s.storage.ListSummaries(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	if summaries == nil {
		summaries = []model.ChatSummary{}
	}
	return summaries, nil
}

func (s *ChatService) GetStorage() storage.Storage {
	return s.storage
}

func (s *ChatService) backupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.storage.Backup(); err != nil {
				logger.Errorf("Periodic backup failed: %v", err)
			}
		case <-s.stop:
			return
		}
	}
}

// Close stops the backup loop and closes the store.
func (s *ChatService) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.storage.Close()
}

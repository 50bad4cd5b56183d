package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"
)

// DiskStorage keeps one JSON file per chat header, one per chat history and one
// summary index per user, all written through temp-file-and-rename.
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]*model.Chat
	cacheSize int
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	if cacheSize <= 0 {
		cacheSize = 100
	}
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*model.Chat),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Infof("Disk storage initialized at %s", d.dataDir)
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "chats"),
		filepath.Join(d.dataDir, "history"),
		filepath.Join(d.dataDir, "userchats"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func safeName(id string) string {
	return url.PathEscape(id) + ".json"
}

func (d *DiskStorage) chatPath(chatID string) string {
	return filepath.Join(d.dataDir, "chats", safeName(chatID))
}

func (d *DiskStorage) historyPath(chatID string) string {
	return filepath.Join(d.dataDir, "history", safeName(chatID))
}

func (d *DiskStorage) summariesPath(userID string) string {
	return filepath.Join(d.dataDir, "userchats", safeName(userID))
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return nil
}

func (d *DiskStorage) loadChatFromFile(chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := readJSON(d.chatPath(chatID), &chat); err != nil {
		return nil, err
	}

	var history []model.Turn
	if err := readJSON(d.historyPath(chatID), &history); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		history = []model.Turn{}
	}

	chat.History = history
	return &chat, nil
}

func (d *DiskStorage) saveChatToFile(chat *model.Chat) error {
	header := *chat
	header.History = nil

	if err := writeJSONAtomic(d.chatPath(chat.ID), header); err != nil {
		return err
	}
	return writeJSONAtomic(d.historyPath(chat.ID), chat.History)
}

func (d *DiskStorage) loadSummaries(userID string) ([]model.ChatSummary, error) {
	var summaries []model.ChatSummary
	if err := readJSON(d.summariesPath(userID), &summaries); err != nil {
		if os.IsNotExist(err) {
			return []model.ChatSummary{}, nil
		}
		return nil, err
	}
	return summaries, nil
}

// chatLocked returns the cached chat or loads it; caller holds d.mu for writing.
func (d *DiskStorage) chatLocked(chatID string) (*model.Chat, error) {
	if chat, ok := d.cache[chatID]; ok {
		return chat, nil
	}

	chat, err := d.loadChatFromFile(chatID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[chatID] = chat
	d.evictCache()
	return chat, nil
}

func (d *DiskStorage) CreateChat(chat *model.Chat, summary model.ChatSummary) error {
	if chat.ID == "" || chat.UserID == "" {
		return ErrInvalidData
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	summaries, err := d.loadSummaries(chat.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	stored := cloneChat(chat)
	if err := d.saveChatToFile(stored); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	summaries = append(summaries, summary)
	if err := writeJSONAtomic(d.summariesPath(chat.UserID), summaries); err != nil {
		// roll back so a chat never exists without its summary
		os.Remove(d.chatPath(chat.ID))
		os.Remove(d.historyPath(chat.ID))
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[chat.ID] = stored
	d.evictCache()

	return nil
}

func (d *DiskStorage) GetChat(userID, chatID string) (*model.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	chat, err := d.chatLocked(chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrChatNotFound
	}

	return cloneChat(chat), nil
}

func (d *DiskStorage) AppendTurns(userID, chatID string, question *model.Turn, answer model.Turn) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	chat, err := d.chatLocked(chatID)
	if err != nil {
		return 0, err
	}
	if chat.UserID != userID {
		return 0, ErrChatNotFound
	}

	turns := planAppend(chat.History, question, answer)

	updated := cloneChat(chat)
	updated.History = append(updated.History, turns...)
	updated.UpdatedAt = time.Now()

	if err := d.saveChatToFile(updated); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cache[chatID] = updated
	return len(turns), nil
}

func (d *DiskStorage) ListSummaries(userID string) ([]model.ChatSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	summaries, err := d.loadSummaries(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return summaries, nil
}

func (d *DiskStorage) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	type cacheEntry struct {
		id        string
		updatedAt time.Time
	}

	entries := make([]cacheEntry, 0, len(d.cache))
	for id, chat := range d.cache {
		entries = append(entries, cacheEntry{id: id, updatedAt: chat.UpdatedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updatedAt.Before(entries[j].updatedAt)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].id)
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*model.Chat)
	return nil
}

func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().Unix()))

	for _, dir := range []string{"chats", "history", "userchats"} {
		srcDir := filepath.Join(d.dataDir, dir)
		dstDir := filepath.Join(backupDir, dir)

		if err := os.MkdirAll(dstDir, 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}

		if err := copyDir(srcDir, dstDir); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func copyDir(src, dst string) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, file.Name()), filepath.Join(dst, file.Name())); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

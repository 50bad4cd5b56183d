package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// SQLStorage persists chats in SQLite or Postgres. Queries are written with ?
// placeholders and rebound for Postgres.
type SQLStorage struct {
	dialect string
	dsn     string
	db      *sql.DB
}

func NewSQLStorage(dialect, dsn string) *SQLStorage {
	return &SQLStorage{dialect: dialect, dsn: dsn}
}

func (s *SQLStorage) Init() error {
	var db *sql.DB
	switch s.dialect {
	case DialectSQLite:
		var err error
		db, err = sql.Open("sqlite3", s.dsn+sqliteOptions(s.dsn))
		if err != nil {
			return fmt.Errorf("%w: open sqlite: %v", ErrStorageInit, err)
		}
		// one writer keeps read-then-append atomic
		db.SetMaxOpenConns(1)
	case DialectPostgres:
		db = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(s.dsn)))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, s.dialect)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("%w: ping: %v", ErrStorageInit, err)
	}

	n, err := runMigrations(db, s.dialect)
	if err != nil {
		db.Close()
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	s.db = db
	logger.Infof("%s storage initialized, %d migrations applied", s.dialect, n)
	return nil
}

func sqliteOptions(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return sep + "_foreign_keys=on&_busy_timeout=5000"
}

func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backup is left to the database's own tooling.
func (s *SQLStorage) Backup() error {
	return nil
}

func (s *SQLStorage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *SQLStorage) CreateChat(chat *model.Chat, summary model.ChatSummary) error {
	if chat.ID == "" || chat.UserID == "" {
		return ErrInvalidData
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chat insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO chats (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`),
		chat.ID, chat.UserID, chat.CreatedAt.UTC(), chat.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert chat: %w", err)
	}

	for i, t := range chat.History {
		if err := s.insertTurn(ctx, tx, chat.ID, i, t); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO chat_summaries (chat_id, user_id, title, created_at) VALUES (?, ?, ?, ?)`),
		summary.ID, chat.UserID, summary.Title, summary.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert chat summary: %w", err)
	}

	return tx.Commit()
}

func (s *SQLStorage) insertTurn(ctx context.Context, tx *sql.Tx, chatID string, seq int, t model.Turn) error {
	_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO turns (chat_id, seq, role, text, img, ai_img, model_used, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		chatID, seq, string(t.Role), t.Text, t.Img, t.AIImg, string(t.ModelUsed), t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetChat(userID, chatID string) (*model.Chat, error) {
	ctx := context.Background()

	var chat model.Chat
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, user_id, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?`), chatID, userID).
		Scan(&chat.ID, &chat.UserID, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT role, text, img, ai_img, model_used, created_at FROM turns WHERE chat_id = ? ORDER BY seq ASC`), chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	chat.History = []model.Turn{}
	for rows.Next() {
		var t model.Turn
		var role, used string
		if err := rows.Scan(&role, &t.Text, &t.Img, &t.AIImg, &used, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Role = model.Role(role)
		t.ModelUsed = model.Mode(used)
		chat.History = append(chat.History, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	return &chat, nil
}

func (s *SQLStorage) AppendTurns(userID, chatID string, question *model.Turn, answer model.Turn) (int, error) {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	lock := ""
	if s.dialect == DialectPostgres {
		lock = " FOR UPDATE"
	}

	var owner string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT user_id FROM chats WHERE id = ?`+lock), chatID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrChatNotFound
		}
		return 0, fmt.Errorf("failed to lock chat: %w", err)
	}
	if owner != userID {
		return 0, ErrChatNotFound
	}

	var last []model.Turn
	nextSeq := 0
	var seq int
	var role, text, img string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT seq, role, text, img FROM turns WHERE chat_id = ? ORDER BY seq DESC LIMIT 1`), chatID).
		Scan(&seq, &role, &text, &img)
	switch {
	case err == nil:
		last = []model.Turn{{Role: model.Role(role), Text: text, Img: img}}
		nextSeq = seq + 1
	case errors.Is(err, sql.ErrNoRows):
	default:
		return 0, fmt.Errorf("failed to read last turn: %w", err)
	}

	turns := planAppend(last, question, answer)
	for i, t := range turns {
		if err := s.insertTurn(ctx, tx, chatID, nextSeq+i, t); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE chats SET updated_at = ? WHERE id = ?`), time.Now().UTC(), chatID); err != nil {
		return 0, fmt.Errorf("failed to touch chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}
	return len(turns), nil
}

func (s *SQLStorage) ListSummaries(userID string) ([]model.ChatSummary, error) {
	rows, err := s.db.Query(s.rebind(`SELECT chat_id, title, created_at FROM chat_summaries WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat summaries: %w", err)
	}
	defer rows.Close()

	summaries := []model.ChatSummary{}
	for rows.Next() {
		var sum model.ChatSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

package storage

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

const migrationTable = "mygpt_migrations"

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_chats",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS chats (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_chats_user ON chats (user_id)`,
				`CREATE TABLE IF NOT EXISTS turns (
					chat_id TEXT NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
					seq INTEGER NOT NULL,
					role TEXT NOT NULL CHECK (role IN ('user', 'model')),
					text TEXT NOT NULL,
					img TEXT NOT NULL DEFAULT '',
					ai_img TEXT NOT NULL DEFAULT '',
					model_used TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (chat_id, seq)
				)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS turns`,
				`DROP TABLE IF EXISTS chats`,
			},
		},
		{
			Id: "0002_chat_summaries",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS chat_summaries (
					chat_id TEXT PRIMARY KEY REFERENCES chats (id) ON DELETE CASCADE,
					user_id TEXT NOT NULL,
					title TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_chat_summaries_user ON chat_summaries (user_id)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS chat_summaries`,
			},
		},
	},
}

// runMigrations applies pending migrations. dialect is a sql-migrate dialect name.
func runMigrations(db *sql.DB, dialect string) (int, error) {
	migrate.SetTable(migrationTable)

	n, err := migrate.Exec(db, dialect, migrations, migrate.Up)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

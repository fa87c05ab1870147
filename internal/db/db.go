package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
            key TEXT PRIMARY KEY,
            tenant TEXT NOT NULL,
            participant_a TEXT NOT NULL,
            participant_b TEXT NOT NULL,
            assignee TEXT,
            status TEXT NOT NULL DEFAULT 'open',
            message_count INT NOT NULL DEFAULT 0,
            unread_count INT NOT NULL DEFAULT 0,
            last_message_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (participant_a <> participant_b),
            CHECK (message_count >= 0),
            CHECK (unread_count >= 0 AND unread_count <= message_count)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations (tenant);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_assignee ON conversations (assignee);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            conversation_key TEXT NOT NULL REFERENCES conversations(key) ON DELETE CASCADE,
            sender TEXT NOT NULL,
            recipient TEXT NOT NULL,
            direction TEXT NOT NULL,
            type TEXT NOT NULL,
            content TEXT,
            media_refs JSONB NOT NULL DEFAULT '[]',
            status TEXT NOT NULL,
            provider_time TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (sender <> recipient)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_key, created_at);`,
		`CREATE TABLE IF NOT EXISTS credentials (
            id TEXT PRIMARY KEY,
            subject TEXT NOT NULL,
            tenant TEXT NOT NULL,
            family_id TEXT NOT NULL,
            device_id TEXT NOT NULL DEFAULT '',
            token_hash TEXT NOT NULL UNIQUE,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            rotated BOOLEAN NOT NULL DEFAULT FALSE,
            used_count INT NOT NULL DEFAULT 0,
            max_uses INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            expires_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_subject ON credentials (subject);`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_family ON credentials (family_id);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}

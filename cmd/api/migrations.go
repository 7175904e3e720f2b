// cmd/api/migrations.go

package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// runMigrations creates the schema. Statements are idempotent so repeated
// startups are safe.
func runMigrations(db *sqlx.DB) error {
	statements := []string{
		// Accounts are owned by the identity collaborator; this table mirrors
		// the slice of account data the chat core reads.
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(100) UNIQUE NOT NULL,
			display_name VARCHAR(200) NOT NULL DEFAULT '',
			avatar_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS private_chats (
			id BIGSERIAL PRIMARY KEY,
			pair_key VARCHAR(64) NOT NULL,
			user_a BIGINT NOT NULL,
			user_b BIGINT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			last_message_text TEXT,
			last_message_sender BIGINT,
			last_message_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (user_a < user_b)
		)`,

		// At most one active chat per pair. Deactivated chats fall out of the
		// index so the pair can start fresh.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_private_chats_pair_key
			ON private_chats (pair_key) WHERE is_active`,

		`CREATE TABLE IF NOT EXISTS private_chat_members (
			chat_id BIGINT NOT NULL REFERENCES private_chats(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL,
			last_read_at TIMESTAMPTZ,
			is_blocked BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (chat_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS chat_groups (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			avatar_url TEXT,
			creator_id BIGINT NOT NULL,
			settings JSONB NOT NULL DEFAULT '{}',
			is_virtual BOOLEAN NOT NULL DEFAULT false,
			is_active BOOLEAN NOT NULL DEFAULT true,
			last_message_text TEXT,
			last_message_sender BIGINT,
			last_message_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS group_members (
			group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'member',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_read_at TIMESTAMPTZ,
			PRIMARY KEY (group_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			chat_type VARCHAR(10) NOT NULL,
			chat_id BIGINT NOT NULL,
			sender_id BIGINT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			preview TEXT NOT NULL DEFAULT '',
			attachments JSONB NOT NULL DEFAULT '[]',
			participant_ids BIGINT[] NOT NULL DEFAULT '{}',
			is_deleted BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_chat
			ON messages (chat_type, chat_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL,
			read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS chat_notifications (
			id BIGSERIAL PRIMARY KEY,
			recipient_id BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			sender_id BIGINT,
			message_id BIGINT,
			chat_id BIGINT,
			chat_kind VARCHAR(10),
			chat_name VARCHAR(100),
			text TEXT NOT NULL DEFAULT '',
			preview TEXT NOT NULL DEFAULT '',
			read BOOLEAN NOT NULL DEFAULT false,
			read_at TIMESTAMPTZ,
			delivered BOOLEAN NOT NULL DEFAULT false,
			delivered_at TIMESTAMPTZ,
			is_deleted BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_chat_notifications_recipient
			ON chat_notifications (recipient_id, created_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_chat_notifications_unread
			ON chat_notifications (recipient_id) WHERE NOT read AND NOT is_deleted`,

		`CREATE TABLE IF NOT EXISTS push_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			token TEXT UNIQUE NOT NULL,
			platform VARCHAR(20) NOT NULL DEFAULT '',
			device_id VARCHAR(100) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_push_tokens_user
			ON push_tokens (user_id) WHERE is_active`,
	}

	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

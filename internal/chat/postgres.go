// internal/chat/postgres.go

package chat

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates the Postgres-backed chat repository
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// FindOrCreatePrivateChat returns the single active chat for the unordered
// pair, creating it on first contact. The conditional insert keyed on the
// canonical pair key makes concurrent joins from both sides converge on one
// row.
func (r *postgresRepository) FindOrCreatePrivateChat(ctx context.Context, userA, userB int64) (*PrivateChat, bool, error) {
	if userA > userB {
		userA, userB = userB, userA
	}
	key := PairKey(userA, userB)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var chatID int64
	created := true
	err = tx.QueryRowContext(ctx, `
        INSERT INTO private_chats (pair_key, user_a, user_b, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, true, NOW(), NOW())
        ON CONFLICT (pair_key) WHERE is_active DO NOTHING
        RETURNING id`,
		key, userA, userB,
	).Scan(&chatID)
	if err == sql.ErrNoRows {
		created = false
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM private_chats WHERE pair_key = $1 AND is_active`, key,
		).Scan(&chatID)
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO private_chat_members (chat_id, user_id)
            VALUES ($1, $2), ($1, $3)
            ON CONFLICT DO NOTHING`,
			chatID, userA, userB,
		)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	chat, err := r.GetPrivateChat(ctx, chatID)
	return chat, created, err
}

func (r *postgresRepository) GetPrivateChat(ctx context.Context, chatID int64) (*PrivateChat, error) {
	var (
		chat       PrivateChat
		lmText     sql.NullString
		lmSender   sql.NullInt64
		lmAt       sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
        SELECT id, pair_key, user_a, user_b, is_active,
               last_message_text, last_message_sender, last_message_at,
               created_at, updated_at
        FROM private_chats WHERE id = $1`,
		chatID,
	).Scan(
		&chat.ID, &chat.PairKey, &chat.UserA, &chat.UserB, &chat.IsActive,
		&lmText, &lmSender, &lmAt,
		&chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lmAt.Valid {
		chat.LastMessage = &LastMessage{Text: lmText.String, SenderID: lmSender.Int64, SentAt: lmAt.Time}
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT chat_id, user_id, last_read_at, is_blocked
        FROM private_chat_members WHERE chat_id = $1 ORDER BY user_id`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p PrivateParticipant
		if err := rows.Scan(&p.ChatID, &p.UserID, &p.LastReadAt, &p.IsBlocked); err != nil {
			return nil, err
		}
		chat.Participants = append(chat.Participants, &p)
	}
	return &chat, rows.Err()
}

func (r *postgresRepository) TouchPrivateLastRead(ctx context.Context, chatID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE private_chat_members SET last_read_at = $3
        WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID, at,
	)
	return err
}

func (r *postgresRepository) SetBlocked(ctx context.Context, chatID, userID int64, blocked bool) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE private_chat_members SET is_blocked = $3
        WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID, blocked,
	)
	return err
}

func (r *postgresRepository) DeactivatePrivateChat(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE private_chats SET is_active = false, updated_at = NOW() WHERE id = $1`,
		chatID,
	)
	return err
}

func (r *postgresRepository) UpdatePrivateLastMessage(ctx context.Context, chatID int64, lm *LastMessage) error {
	if lm == nil {
		_, err := r.db.ExecContext(ctx, `
            UPDATE private_chats
            SET last_message_text = NULL, last_message_sender = NULL,
                last_message_at = NULL, updated_at = NOW()
            WHERE id = $1`,
			chatID,
		)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
        UPDATE private_chats
        SET last_message_text = $2, last_message_sender = $3,
            last_message_at = $4, updated_at = NOW()
        WHERE id = $1`,
		chatID, lm.Text, lm.SenderID, lm.SentAt,
	)
	return err
}

// RecomputePrivateLastMessage rebuilds the cache from the newest surviving
// message in one statement. The outer join keeps a row of NULLs when no
// message remains, so the cache is cleared rather than left stale.
func (r *postgresRepository) RecomputePrivateLastMessage(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE private_chats
        SET last_message_text = latest.preview,
            last_message_sender = latest.sender_id,
            last_message_at = latest.created_at,
            updated_at = NOW()
        FROM (SELECT 1) AS one
        LEFT JOIN LATERAL (
            SELECT m.preview, m.sender_id, m.created_at
            FROM messages m
            WHERE m.chat_type = 'private' AND m.chat_id = $1 AND NOT m.is_deleted
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT 1
        ) latest ON true
        WHERE private_chats.id = $1`,
		chatID,
	)
	return err
}

// Groups

func (r *postgresRepository) CreateGroup(ctx context.Context, group *ChatGroup) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO chat_groups (name, description, avatar_url, creator_id, settings, is_virtual, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, true, NOW(), NOW())
        RETURNING id, created_at, updated_at`,
		group.Name, group.Description, group.AvatarURL, group.CreatorID, group.Settings, group.IsVirtual,
	).Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return err
	}

	for _, m := range group.Members {
		m.GroupID = group.ID
		err = tx.QueryRowContext(ctx, `
            INSERT INTO group_members (group_id, user_id, role, joined_at)
            VALUES ($1, $2, $3, NOW())
            RETURNING joined_at`,
			group.ID, m.UserID, m.Role,
		).Scan(&m.JoinedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *postgresRepository) GetGroup(ctx context.Context, groupID int64) (*ChatGroup, error) {
	var (
		group    ChatGroup
		lmText   sql.NullString
		lmSender sql.NullInt64
		lmAt     sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
        SELECT id, name, description, avatar_url, creator_id, settings, is_virtual, is_active,
               last_message_text, last_message_sender, last_message_at,
               created_at, updated_at
        FROM chat_groups WHERE id = $1`,
		groupID,
	).Scan(
		&group.ID, &group.Name, &group.Description, &group.AvatarURL, &group.CreatorID,
		&group.Settings, &group.IsVirtual, &group.IsActive,
		&lmText, &lmSender, &lmAt,
		&group.CreatedAt, &group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lmAt.Valid {
		group.LastMessage = &LastMessage{Text: lmText.String, SenderID: lmSender.Int64, SentAt: lmAt.Time}
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT gm.group_id, gm.user_id, gm.role, gm.joined_at, gm.last_read_at,
               u.id, u.username, u.display_name, u.avatar_url
        FROM group_members gm
        LEFT JOIN users u ON u.id = gm.user_id
        WHERE gm.group_id = $1
        ORDER BY gm.joined_at ASC, gm.user_id ASC`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m        GroupMember
			uID      sql.NullInt64
			username sql.NullString
			display  sql.NullString
			avatar   sql.NullString
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt,
			&uID, &username, &display, &avatar); err != nil {
			return nil, err
		}
		if uID.Valid {
			m.User = &UserInfo{ID: uID.Int64, Username: username.String, DisplayName: display.String}
			if avatar.Valid {
				m.User.AvatarURL = &avatar.String
			}
		}
		group.Members = append(group.Members, &m)
	}
	return &group, rows.Err()
}

func (r *postgresRepository) GetGroupMember(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	var m GroupMember
	err := r.db.QueryRowContext(ctx, `
        SELECT group_id, user_id, role, joined_at, last_read_at
        FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	).Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AddGroupMembers appends members, skipping identities already present, and
// returns the IDs actually added.
func (r *postgresRepository) AddGroupMembers(ctx context.Context, groupID int64, members []*GroupMember) ([]int64, error) {
	added := make([]int64, 0, len(members))
	for _, m := range members {
		var userID int64
		err := r.db.QueryRowContext(ctx, `
            INSERT INTO group_members (group_id, user_id, role, joined_at)
            VALUES ($1, $2, $3, NOW())
            ON CONFLICT (group_id, user_id) DO NOTHING
            RETURNING user_id`,
			groupID, m.UserID, m.Role,
		).Scan(&userID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		added = append(added, userID)
	}
	return added, nil
}

func (r *postgresRepository) RemoveGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postgresRepository) UpdateMemberRole(ctx context.Context, groupID, userID int64, role GroupRole) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE group_members SET role = $3 WHERE group_id = $1 AND user_id = $2`,
		groupID, userID, role,
	)
	return err
}

// PromoteEarliestMemberIfNoAdmin promotes the longest-tenured member to admin
// in a single conditional statement, only when the group currently has no
// admin. Returns the promoted identity or 0.
func (r *postgresRepository) PromoteEarliestMemberIfNoAdmin(ctx context.Context, groupID int64) (int64, error) {
	var promoted int64
	err := r.db.QueryRowContext(ctx, `
        WITH candidate AS (
            SELECT user_id FROM group_members
            WHERE group_id = $1
              AND NOT EXISTS (
                  SELECT 1 FROM group_members WHERE group_id = $1 AND role = 'admin'
              )
            ORDER BY joined_at ASC, user_id ASC
            LIMIT 1
        )
        UPDATE group_members gm SET role = 'admin'
        FROM candidate c
        WHERE gm.group_id = $1 AND gm.user_id = c.user_id
        RETURNING gm.user_id`,
		groupID,
	).Scan(&promoted)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return promoted, err
}

func (r *postgresRepository) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID,
	).Scan(&n)
	return n, err
}

func (r *postgresRepository) UpdateGroup(ctx context.Context, groupID int64, name, description, avatarURL *string, settings *GroupSettings) error {
	var settingsArg interface{}
	if settings != nil {
		settingsArg = *settings
	}
	_, err := r.db.ExecContext(ctx, `
        UPDATE chat_groups
        SET name = COALESCE($2, name),
            description = COALESCE($3, description),
            avatar_url = COALESCE($4, avatar_url),
            settings = COALESCE($5, settings),
            updated_at = NOW()
        WHERE id = $1`,
		groupID, name, description, avatarURL, settingsArg,
	)
	return err
}

func (r *postgresRepository) DeactivateGroup(ctx context.Context, groupID int64) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE chat_groups SET is_active = false, updated_at = NOW() WHERE id = $1`,
		groupID,
	)
	return err
}

func (r *postgresRepository) DeactivateGroupIfEmpty(ctx context.Context, groupID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_groups SET is_active = false, updated_at = NOW()
        WHERE id = $1 AND is_active
          AND NOT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1)`,
		groupID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postgresRepository) TouchGroupLastRead(ctx context.Context, groupID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE group_members SET last_read_at = $3
        WHERE group_id = $1 AND user_id = $2`,
		groupID, userID, at,
	)
	return err
}

func (r *postgresRepository) UpdateGroupLastMessage(ctx context.Context, groupID int64, lm *LastMessage) error {
	if lm == nil {
		_, err := r.db.ExecContext(ctx, `
            UPDATE chat_groups
            SET last_message_text = NULL, last_message_sender = NULL,
                last_message_at = NULL, updated_at = NOW()
            WHERE id = $1`,
			groupID,
		)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
        UPDATE chat_groups
        SET last_message_text = $2, last_message_sender = $3,
            last_message_at = $4, updated_at = NOW()
        WHERE id = $1`,
		groupID, lm.Text, lm.SenderID, lm.SentAt,
	)
	return err
}

func (r *postgresRepository) RecomputeGroupLastMessage(ctx context.Context, groupID int64) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE chat_groups
        SET last_message_text = latest.preview,
            last_message_sender = latest.sender_id,
            last_message_at = latest.created_at,
            updated_at = NOW()
        FROM (SELECT 1) AS one
        LEFT JOIN LATERAL (
            SELECT m.preview, m.sender_id, m.created_at
            FROM messages m
            WHERE m.chat_type = 'group' AND m.chat_id = $1 AND NOT m.is_deleted
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT 1
        ) latest ON true
        WHERE chat_groups.id = $1`,
		groupID,
	)
	return err
}

// Messages

func (r *postgresRepository) CreateMessage(ctx context.Context, message *Message) error {
	return r.db.QueryRowContext(ctx, `
        INSERT INTO messages (chat_type, chat_id, sender_id, text, preview, attachments, participant_ids, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        RETURNING id, created_at`,
		message.ChatType, message.ChatID, message.SenderID,
		message.Text, message.Preview(), message.Attachments,
		pq.Array(message.ParticipantIDs),
	).Scan(&message.ID, &message.CreatedAt)
}

func (r *postgresRepository) GetMessage(ctx context.Context, messageID int64) (*Message, error) {
	var (
		msg          Message
		participants pq.Int64Array
	)
	err := r.db.QueryRowContext(ctx, `
        SELECT id, chat_type, chat_id, sender_id, text, attachments, participant_ids, is_deleted, created_at
        FROM messages WHERE id = $1`,
		messageID,
	).Scan(
		&msg.ID, &msg.ChatType, &msg.ChatID, &msg.SenderID,
		&msg.Text, &msg.Attachments, &participants, &msg.IsDeleted, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.ParticipantIDs = participants

	rows, err := r.db.QueryContext(ctx, `
        SELECT user_id, read_at FROM message_reads WHERE message_id = $1 ORDER BY read_at`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rr ReadReceipt
		if err := rows.Scan(&rr.UserID, &rr.ReadAt); err != nil {
			return nil, err
		}
		msg.ReadBy = append(msg.ReadBy, rr)
	}
	return &msg, rows.Err()
}

func (r *postgresRepository) ListMessages(ctx context.Context, chatType ChatType, chatID int64, limit, offset int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT m.id, m.chat_type, m.chat_id, m.sender_id, m.text, m.attachments,
               m.participant_ids, m.is_deleted, m.created_at,
               u.id, u.username, u.display_name, u.avatar_url
        FROM messages m
        LEFT JOIN users u ON m.sender_id = u.id
        WHERE m.chat_type = $1 AND m.chat_id = $2 AND NOT m.is_deleted
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $3 OFFSET $4`,
		chatType, chatID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			msg          Message
			participants pq.Int64Array
			uID          sql.NullInt64
			username     sql.NullString
			display      sql.NullString
			avatar       sql.NullString
		)
		err := rows.Scan(
			&msg.ID, &msg.ChatType, &msg.ChatID, &msg.SenderID, &msg.Text, &msg.Attachments,
			&participants, &msg.IsDeleted, &msg.CreatedAt,
			&uID, &username, &display, &avatar,
		)
		if err != nil {
			return nil, err
		}
		msg.ParticipantIDs = participants
		if uID.Valid {
			msg.Sender = &UserInfo{ID: uID.Int64, Username: username.String, DisplayName: display.String}
			if avatar.Valid {
				msg.Sender.AvatarURL = &avatar.String
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadReadReceipts(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *postgresRepository) loadReadReceipts(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	byID := make(map[int64]*Message, len(messages))
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	query, args, err := sqlx.In(`
        SELECT message_id, user_id, read_at FROM message_reads
        WHERE message_id IN (?) ORDER BY read_at`, ids)
	if err != nil {
		return err
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			rr        ReadReceipt
		)
		if err := rows.Scan(&messageID, &rr.UserID, &rr.ReadAt); err != nil {
			return err
		}
		if m, ok := byID[messageID]; ok {
			m.ReadBy = append(m.ReadBy, rr)
		}
	}
	return rows.Err()
}

// MarkMessageRead appends a read receipt at most once per reader. The insert
// is conditional on the message surviving, so a retry after failure cannot
// duplicate effects.
func (r *postgresRepository) MarkMessageRead(ctx context.Context, messageID, userID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO message_reads (message_id, user_id, read_at)
        SELECT id, $2, $3 FROM messages WHERE id = $1 AND NOT is_deleted
        ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID, at,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkAllMessagesRead bulk-appends receipts for every message in the chat
// that the reader has not receipted yet. Own messages are skipped.
func (r *postgresRepository) MarkAllMessagesRead(ctx context.Context, chatType ChatType, chatID, userID int64, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO message_reads (message_id, user_id, read_at)
        SELECT m.id, $3, $4 FROM messages m
        WHERE m.chat_type = $1 AND m.chat_id = $2
          AND NOT m.is_deleted AND m.sender_id <> $3
        ON CONFLICT (message_id, user_id) DO NOTHING`,
		chatType, chatID, userID, at,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDeleteMessage flips the deleted flag only for the original sender.
func (r *postgresRepository) SoftDeleteMessage(ctx context.Context, messageID, senderID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE messages SET is_deleted = true
        WHERE id = $1 AND sender_id = $2 AND NOT is_deleted`,
		messageID, senderID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Accounts

func (r *postgresRepository) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	var (
		u      UserInfo
		avatar sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
        SELECT id, username, display_name, avatar_url FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &avatar)
	if err != nil {
		return nil, err
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	return &u, nil
}

func (r *postgresRepository) GetUsersInfo(ctx context.Context, userIDs []int64) (map[int64]*UserInfo, error) {
	result := make(map[int64]*UserInfo, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(
		`SELECT id, username, display_name, avatar_url FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u      UserInfo
			avatar sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &avatar); err != nil {
			return nil, err
		}
		if avatar.Valid {
			u.AvatarURL = &avatar.String
		}
		result[u.ID] = &u
	}
	return result, rows.Err()
}

// ResolveUserIDs filters the given IDs down to existing accounts, preserving
// input order. Unresolvable identities are silently dropped.
func (r *postgresRepository) ResolveUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	existing, err := r.GetUsersInfo(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	resolved := make([]int64, 0, len(existing))
	for _, id := range userIDs {
		if _, ok := existing[id]; ok {
			resolved = append(resolved, id)
		}
	}
	return resolved, nil
}

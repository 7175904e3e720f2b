// internal/notifications/postgres.go

package notifications

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates the Postgres-backed notification store
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, n *Notification) error {
	return r.db.QueryRowContext(ctx, `
        INSERT INTO chat_notifications (
            recipient_id, type, sender_id, message_id, chat_id, chat_kind, chat_name,
            text, preview, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
        RETURNING id, created_at`,
		n.RecipientID, n.Type, n.SenderID, n.MessageID,
		n.ChatID, n.ChatKind, n.ChatName, n.Text, n.Preview,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *postgresRepository) List(ctx context.Context, recipientID int64, limit, offset int) ([]*Notification, error) {
	rows, err := r.db.QueryxContext(ctx, `
        SELECT id, recipient_id, type, sender_id, message_id, chat_id, chat_kind, chat_name,
               text, preview, read, read_at, delivered, delivered_at, is_deleted, created_at
        FROM chat_notifications
        WHERE recipient_id = $1 AND NOT is_deleted
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`,
		recipientID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.StructScan(&n); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (r *postgresRepository) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM chat_notifications
        WHERE recipient_id = $1 AND NOT read AND NOT is_deleted`,
		recipientID,
	).Scan(&n)
	return n, err
}

func (r *postgresRepository) MarkRead(ctx context.Context, notificationID, recipientID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_notifications SET read = true, read_at = $3
        WHERE id = $1 AND recipient_id = $2 AND NOT read AND NOT is_deleted`,
		notificationID, recipientID, at,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postgresRepository) MarkAllRead(ctx context.Context, recipientID int64, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_notifications SET read = true, read_at = $2
        WHERE recipient_id = $1 AND NOT read AND NOT is_deleted`,
		recipientID, at,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *postgresRepository) MarkChatRead(ctx context.Context, recipientID int64, chatKind string, chatID int64, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_notifications SET read = true, read_at = $4
        WHERE recipient_id = $1 AND chat_kind = $2 AND chat_id = $3
          AND NOT read AND NOT is_deleted`,
		recipientID, chatKind, chatID, at,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *postgresRepository) MarkDelivered(ctx context.Context, notificationID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE chat_notifications SET delivered = true, delivered_at = $2
        WHERE id = $1 AND NOT delivered`,
		notificationID, at,
	)
	return err
}

func (r *postgresRepository) SoftDelete(ctx context.Context, notificationID, recipientID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_notifications SET is_deleted = true
        WHERE id = $1 AND recipient_id = $2 AND NOT is_deleted`,
		notificationID, recipientID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteExpired hard-deletes records past the retention window, read or not.
func (r *postgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM chat_notifications WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Push tokens

func (r *postgresRepository) SavePushToken(ctx context.Context, userID int64, token, platform, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO push_tokens (user_id, token, platform, device_id, is_active, created_at)
        VALUES ($1, $2, $3, $4, true, NOW())
        ON CONFLICT (token) DO UPDATE
        SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform,
            device_id = EXCLUDED.device_id, is_active = true`,
		userID, token, platform, deviceID,
	)
	return err
}

func (r *postgresRepository) DeletePushToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = $1`, token)
	return err
}

func (r *postgresRepository) GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error) {
	rows, err := r.db.QueryxContext(ctx, `
        SELECT id, user_id, token, platform, device_id, is_active, created_at
        FROM push_tokens WHERE user_id = $1 AND is_active`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*PushToken
	for rows.Next() {
		var t PushToken
		if err := rows.StructScan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

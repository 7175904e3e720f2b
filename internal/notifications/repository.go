// internal/notifications/repository.go

package notifications

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, recipientID int64, limit, offset int) ([]*Notification, error)
	UnreadCount(ctx context.Context, recipientID int64) (int, error)
	MarkRead(ctx context.Context, notificationID, recipientID int64, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID int64, at time.Time) (int64, error)
	MarkChatRead(ctx context.Context, recipientID int64, chatKind string, chatID int64, at time.Time) (int64, error)
	MarkDelivered(ctx context.Context, notificationID int64, at time.Time) error
	SoftDelete(ctx context.Context, notificationID, recipientID int64) (bool, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// Push tokens
	SavePushToken(ctx context.Context, userID int64, token, platform, deviceID string) error
	DeletePushToken(ctx context.Context, token string) error
	GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error)
}

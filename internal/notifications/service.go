// internal/notifications/service.go

package notifications

import (
	"context"
	"log"
	"time"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
)

type Service interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, recipientID int64, limit, offset int) ([]*Notification, error)
	UnreadCount(ctx context.Context, recipientID int64) (int, error)
	MarkRead(ctx context.Context, notificationID, recipientID int64) error
	MarkAllRead(ctx context.Context, recipientID int64) error
	MarkChatRead(ctx context.Context, recipientID int64, chatKind string, chatID int64) error
	MarkDelivered(ctx context.Context, notificationID int64) error
	Delete(ctx context.Context, notificationID, recipientID int64) error
	RegisterPushToken(ctx context.Context, userID int64, req *PushTokenRequest) error
	UnregisterPushToken(ctx context.Context, token string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

type service struct {
	repo      Repository
	push      PushService
	retention time.Duration
}

// NewService creates the notification sink service
func NewService(repo Repository, push PushService, retention time.Duration) Service {
	return &service{
		repo:      repo,
		push:      push,
		retention: retention,
	}
}

// Create persists the fan-out record, then pushes best-effort. A push failure
// never rolls back the persisted record; reconnecting clients re-fetch unread
// state instead.
func (s *service) Create(ctx context.Context, n *Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return apperrors.Storage(err)
	}

	if s.push != nil {
		go func(n Notification) {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			push := &PushNotification{
				Title: n.Text,
				Body:  n.Preview,
				Data:  map[string]string{"type": string(n.Type)},
			}
			if err := s.push.SendNotification(pushCtx, n.RecipientID, push); err != nil {
				log.Printf("Push delivery failed for notification %d: %v", n.ID, err)
			}
		}(*n)
	}
	return nil
}

func (s *service) List(ctx context.Context, recipientID int64, limit, offset int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	notifications, err := s.repo.List(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	return notifications, nil
}

func (s *service) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	n, err := s.repo.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, apperrors.Storage(err)
	}
	return n, nil
}

// MarkRead is idempotent: marking an already-read notification is a no-op.
func (s *service) MarkRead(ctx context.Context, notificationID, recipientID int64) error {
	if _, err := s.repo.MarkRead(ctx, notificationID, recipientID, time.Now()); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID int64) error {
	if _, err := s.repo.MarkAllRead(ctx, recipientID, time.Now()); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *service) MarkChatRead(ctx context.Context, recipientID int64, chatKind string, chatID int64) error {
	if _, err := s.repo.MarkChatRead(ctx, recipientID, chatKind, chatID, time.Now()); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *service) MarkDelivered(ctx context.Context, notificationID int64) error {
	if err := s.repo.MarkDelivered(ctx, notificationID, time.Now()); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, notificationID, recipientID int64) error {
	deleted, err := s.repo.SoftDelete(ctx, notificationID, recipientID)
	if err != nil {
		return apperrors.Storage(err)
	}
	if !deleted {
		return apperrors.NotFound("notification not found")
	}
	return nil
}

func (s *service) RegisterPushToken(ctx context.Context, userID int64, req *PushTokenRequest) error {
	if err := s.repo.SavePushToken(ctx, userID, req.Token, req.Platform, req.DeviceID); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *service) UnregisterPushToken(ctx context.Context, token string) error {
	if err := s.repo.DeletePushToken(ctx, token); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

// CleanupExpired removes records past the retention window, read or unread.
func (s *service) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	n, err := s.repo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Storage(err)
	}
	return n, nil
}

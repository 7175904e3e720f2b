package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*Notification
	tokens map[string]*PushToken
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:  make(map[int64]*Notification),
		tokens: make(map[string]*PushToken),
	}
}

func (r *memoryRepo) Create(ctx context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.items[n.ID] = n
	return nil
}

func (r *memoryRepo) List(ctx context.Context, recipientID int64, limit, offset int) ([]*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Notification
	for _, n := range r.items {
		if n.RecipientID == recipientID && !n.IsDeleted {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memoryRepo) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.items {
		if n.RecipientID == recipientID && !n.Read && !n.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) MarkRead(ctx context.Context, notificationID, recipientID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[notificationID]
	if !ok || n.RecipientID != recipientID || n.Read || n.IsDeleted {
		return false, nil
	}
	n.Read = true
	n.ReadAt = &at
	return true, nil
}

func (r *memoryRepo) MarkAllRead(ctx context.Context, recipientID int64, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.items {
		if n.RecipientID == recipientID && !n.Read && !n.IsDeleted {
			n.Read = true
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) MarkChatRead(ctx context.Context, recipientID int64, chatKind string, chatID int64, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.items {
		if n.RecipientID != recipientID || n.Read || n.IsDeleted {
			continue
		}
		if n.ChatKind == nil || *n.ChatKind != chatKind || n.ChatID == nil || *n.ChatID != chatID {
			continue
		}
		n.Read = true
		n.ReadAt = &at
		count++
	}
	return count, nil
}

func (r *memoryRepo) MarkDelivered(ctx context.Context, notificationID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.items[notificationID]; ok && !n.Delivered {
		n.Delivered = true
		n.DeliveredAt = &at
	}
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, notificationID, recipientID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[notificationID]
	if !ok || n.RecipientID != recipientID || n.IsDeleted {
		return false, nil
	}
	n.IsDeleted = true
	return true, nil
}

func (r *memoryRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, n := range r.items {
		if n.CreatedAt.Before(cutoff) {
			delete(r.items, id)
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) SavePushToken(ctx context.Context, userID int64, token, platform, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = &PushToken{UserID: userID, Token: token, Platform: platform, DeviceID: deviceID, IsActive: true}
	return nil
}

func (r *memoryRepo) DeletePushToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *memoryRepo) GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PushToken
	for _, t := range r.tokens {
		if t.UserID == userID && t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func chatRef(kind string, chatID int64) (*string, *int64) {
	return &kind, &chatID
}

func TestCreateAndUnreadCount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 30*24*time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Create(ctx, &Notification{RecipientID: 1, Type: TypeNewMessage, Text: "hi"}))
	}
	require.NoError(t, svc.Create(ctx, &Notification{RecipientID: 2, Type: TypeNewMessage, Text: "hi"}))

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMarkChatReadClearsBacklog(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 30*24*time.Hour)
	ctx := context.Background()

	kind, chatID := chatRef("private", 5)
	otherKind, otherChat := chatRef("group", 9)

	require.NoError(t, svc.Create(ctx, &Notification{RecipientID: 1, Type: TypeNewMessage, ChatKind: kind, ChatID: chatID}))
	require.NoError(t, svc.Create(ctx, &Notification{RecipientID: 1, Type: TypeNewMessage, ChatKind: kind, ChatID: chatID}))
	require.NoError(t, svc.Create(ctx, &Notification{RecipientID: 1, Type: TypeNewMessage, ChatKind: otherKind, ChatID: otherChat}))

	require.NoError(t, svc.MarkChatRead(ctx, 1, "private", 5))

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteNotification(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 30*24*time.Hour)
	ctx := context.Background()

	n := &Notification{RecipientID: 1, Type: TypeNewMessage}
	require.NoError(t, svc.Create(ctx, n))

	// Other recipients cannot delete
	err := svc.Delete(ctx, n.ID, 2)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	require.NoError(t, svc.Delete(ctx, n.ID, 1))
	err = svc.Delete(ctx, n.ID, 1)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestCleanupExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 30*24*time.Hour)
	ctx := context.Background()

	old := &Notification{RecipientID: 1, Type: TypeNewMessage, CreatedAt: time.Now().Add(-31 * 24 * time.Hour)}
	fresh := &Notification{RecipientID: 1, Type: TypeNewMessage}
	require.NoError(t, svc.Create(ctx, old))
	require.NoError(t, svc.Create(ctx, fresh))

	// Unread state does not shield a record from retention
	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

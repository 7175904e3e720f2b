// internal/presence/status.go
// Durable presence records, one per identity, persisted in Redis so that
// status and privacy survive process restarts. The connection registry stays
// purely in-process; only status/privacy/last-active live here.

package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Status is an identity's presence status
type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusBusy      Status = "busy"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// ValidStatus reports whether s is a member of the status enum
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusOnline, StatusAway, StatusBusy, StatusInvisible, StatusOffline:
		return true
	}
	return false
}

// UserPresence is the durable presence record for one identity
type UserPresence struct {
	UserID           int64     `json:"user_id"`
	Status           Status    `json:"status"`
	LastActiveAt     time.Time `json:"last_active_at"`
	ShowOnlineStatus bool      `json:"show_online_status"`
}

// StatusStore persists presence records in Redis
type StatusStore struct {
	rdb *redis.Client
}

// NewStatusStore creates a presence status store
func NewStatusStore(rdb *redis.Client) *StatusStore {
	return &StatusStore{rdb: rdb}
}

func presenceKey(userID int64) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

// SetStatus updates an identity's status and last-active timestamp
func (s *StatusStore) SetStatus(ctx context.Context, userID int64, status Status) error {
	return s.rdb.HSet(ctx, presenceKey(userID), map[string]interface{}{
		"status":      string(status),
		"last_active": time.Now().Unix(),
	}).Err()
}

// SetPrivacy updates whether other users may see this identity online
func (s *StatusStore) SetPrivacy(ctx context.Context, userID int64, showOnlineStatus bool) error {
	return s.rdb.HSet(ctx, presenceKey(userID), "show_online", boolField(showOnlineStatus)).Err()
}

// Get returns the identity's presence record. Missing records read as
// offline with visibility enabled.
func (s *StatusStore) Get(ctx context.Context, userID int64) (*UserPresence, error) {
	fields, err := s.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	p := &UserPresence{
		UserID:           userID,
		Status:           StatusOffline,
		ShowOnlineStatus: true,
	}

	if v, ok := fields["status"]; ok && ValidStatus(v) {
		p.Status = Status(v)
	}
	if v, ok := fields["last_active"]; ok {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.LastActiveAt = time.Unix(unix, 0)
		}
	}
	if v, ok := fields["show_online"]; ok {
		p.ShowOnlineStatus = v == "1"
	}

	return p, nil
}

// ListVisible resolves presence records for the given identities, dropping
// those whose privacy setting or invisible status hides them. Used to build
// the online list delivered at handshake.
func (s *StatusStore) ListVisible(ctx context.Context, userIDs []int64) ([]*UserPresence, error) {
	visible := make([]*UserPresence, 0, len(userIDs))
	for _, id := range userIDs {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !p.ShowOnlineStatus || p.Status == StatusInvisible {
			continue
		}
		visible = append(visible, p)
	}
	return visible, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

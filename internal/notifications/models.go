// internal/notifications/models.go

package notifications

import (
	"time"
)

// Type enumerates the chat events that fan out as notifications
type Type string

const (
	TypeNewMessage       Type = "new_message"
	TypeAddedToGroup     Type = "added_to_group"
	TypeRemovedFromGroup Type = "removed_from_group"
	TypeMembersAdded     Type = "members_added"
	TypeMemberLeft       Type = "member_left"
	TypeRoleChanged      Type = "role_changed"
	TypePromotedAdmin    Type = "promoted_admin"
	TypeGroupUpdated     Type = "group_updated"
	TypeGroupDeleted     Type = "group_deleted"
)

// Notification is one durable fan-out record: "an event happened that the
// recipient should see", independent of whether they are connected right now.
// Records expire after the configured retention window regardless of read
// state.
type Notification struct {
	ID          int64      `json:"id" db:"id"`
	RecipientID int64      `json:"recipient_id" db:"recipient_id"`
	Type        Type       `json:"type" db:"type"`
	SenderID    *int64     `json:"sender_id,omitempty" db:"sender_id"`
	MessageID   *int64     `json:"message_id,omitempty" db:"message_id"`
	ChatID      *int64     `json:"chat_id,omitempty" db:"chat_id"`
	ChatKind    *string    `json:"chat_kind,omitempty" db:"chat_kind"`
	ChatName    *string    `json:"chat_name,omitempty" db:"chat_name"`
	Text        string     `json:"text" db:"text"`
	Preview     string     `json:"preview" db:"preview"`
	Read        bool       `json:"read" db:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`
	Delivered   bool       `json:"delivered" db:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	IsDeleted   bool       `json:"-" db:"is_deleted"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// PushToken represents a device push notification token
type PushToken struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PushTokenRequest registers a device token
type PushTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
	DeviceID string `json:"device_id"`
}

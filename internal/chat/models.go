// internal/chat/models.go

package chat

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ChatType discriminates private from group conversations
type ChatType string

const (
	TypePrivate ChatType = "private"
	TypeGroup   ChatType = "group"
)

// ValidChatType reports whether t is a member of the chat type enum
func ValidChatType(t string) bool {
	return ChatType(t) == TypePrivate || ChatType(t) == TypeGroup
}

// PairKey returns the canonical room key for an unordered pair of identities.
// Both sides of a private conversation compute the same key regardless of who
// initiates, so it doubles as the unique index on active private chats.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("private:%d:%d", a, b)
}

// GroupRoomID returns the room key for a group conversation
func GroupRoomID(groupID int64) string {
	return fmt.Sprintf("group:%d", groupID)
}

// UserInfo is the slice of account data the chat core reads. Accounts are
// owned by the identity collaborator.
type UserInfo struct {
	ID          int64   `json:"id" db:"id"`
	Username    string  `json:"username" db:"username"`
	DisplayName string  `json:"display_name" db:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// LastMessage is the cached preview of a chat's most recent message
type LastMessage struct {
	Text     string    `json:"text"`
	SenderID int64     `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

// PrivateChat is a two-party conversation. UserA < UserB always; the pair key
// is derived from the ordered pair so at most one active chat exists per pair.
type PrivateChat struct {
	ID          int64        `json:"id" db:"id"`
	PairKey     string       `json:"-" db:"pair_key"`
	UserA       int64        `json:"user_a" db:"user_a"`
	UserB       int64        `json:"user_b" db:"user_b"`
	IsActive    bool         `json:"is_active" db:"is_active"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`

	// Loaded with the chat
	Participants []*PrivateParticipant `json:"participants,omitempty"`
}

// PeerOf returns the other participant of the pair
func (c *PrivateChat) PeerOf(userID int64) int64 {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// HasParticipant reports whether userID belongs to the pair
func (c *PrivateChat) HasParticipant(userID int64) bool {
	return c.UserA == userID || c.UserB == userID
}

// PrivateParticipant is the per-participant status record of a private chat.
// IsBlocked means this participant has blocked the other one.
type PrivateParticipant struct {
	ChatID     int64      `json:"chat_id" db:"chat_id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	LastReadAt *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	IsBlocked  bool       `json:"is_blocked" db:"is_blocked"`
}

// GroupRole is a member's role within a group
type GroupRole string

const (
	RoleAdmin  GroupRole = "admin"
	RoleMember GroupRole = "member"
)

// GroupPermission controls who may perform a group action
type GroupPermission string

const (
	PermAllMembers GroupPermission = "all_members"
	PermAdminsOnly GroupPermission = "admins_only"
)

// GroupSettings are the per-group behavior switches
type GroupSettings struct {
	SendMessages   GroupPermission `json:"send_messages"`
	AddMembers     GroupPermission `json:"add_members"`
	RemoveMembers  GroupPermission `json:"remove_members"`
	IsDiscoverable bool            `json:"is_discoverable"`
}

// DefaultGroupSettings returns the settings a new group starts with
func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		SendMessages:   PermAllMembers,
		AddMembers:     PermAdminsOnly,
		RemoveMembers:  PermAdminsOnly,
		IsDiscoverable: false,
	}
}

// Scan implements sql.Scanner for JSONB columns
func (s *GroupSettings) Scan(value interface{}) error {
	if value == nil {
		*s = DefaultGroupSettings()
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected settings column type %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer for JSONB columns
func (s GroupSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// GroupSettingsPatch merges field-by-field into existing settings; nil fields
// are left untouched, never wholesale replaced.
type GroupSettingsPatch struct {
	SendMessages   *GroupPermission `json:"send_messages,omitempty" validate:"omitempty,oneof=all_members admins_only"`
	AddMembers     *GroupPermission `json:"add_members,omitempty" validate:"omitempty,oneof=all_members admins_only"`
	RemoveMembers  *GroupPermission `json:"remove_members,omitempty" validate:"omitempty,oneof=all_members admins_only"`
	IsDiscoverable *bool            `json:"is_discoverable,omitempty"`
}

// Apply merges the patch into s
func (p *GroupSettingsPatch) Apply(s *GroupSettings) {
	if p == nil {
		return
	}
	if p.SendMessages != nil {
		s.SendMessages = *p.SendMessages
	}
	if p.AddMembers != nil {
		s.AddMembers = *p.AddMembers
	}
	if p.RemoveMembers != nil {
		s.RemoveMembers = *p.RemoveMembers
	}
	if p.IsDiscoverable != nil {
		s.IsDiscoverable = *p.IsDiscoverable
	}
}

// GroupMember is one membership record of a group
type GroupMember struct {
	GroupID    int64      `json:"group_id" db:"group_id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	Role       GroupRole  `json:"role" db:"role"`
	JoinedAt   time.Time  `json:"joined_at" db:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`

	// Joined fields
	User *UserInfo `json:"user,omitempty"`
}

// ChatGroup is a multi-party conversation
type ChatGroup struct {
	ID          int64         `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description" db:"description"`
	AvatarURL   *string       `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatorID   int64         `json:"creator_id" db:"creator_id"`
	Settings    GroupSettings `json:"settings" db:"settings"`
	IsVirtual   bool          `json:"is_virtual" db:"is_virtual"`
	IsActive    bool          `json:"is_active" db:"is_active"`
	LastMessage *LastMessage  `json:"last_message,omitempty"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`

	// Loaded with the group, ordered by joined_at
	Members []*GroupMember `json:"members,omitempty"`
}

// Member returns the membership record for userID, or nil
func (g *ChatGroup) Member(userID int64) *GroupMember {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

// AdminCount returns the number of admin members
func (g *ChatGroup) AdminCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Role == RoleAdmin {
			n++
		}
	}
	return n
}

// MemberIDs returns all member identities in join order
func (g *ChatGroup) MemberIDs() []int64 {
	ids := make([]int64, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// ensureCreatorAdmin enforces the creation invariant: the creator is the
// first member and always an admin. Idempotent: if the creator is already
// present its role is forced to admin and other members are untouched.
// Called explicitly wherever a group value is constructed.
func ensureCreatorAdmin(g *ChatGroup) {
	for _, m := range g.Members {
		if m.UserID == g.CreatorID {
			m.Role = RoleAdmin
			return
		}
	}
	creator := &GroupMember{GroupID: g.ID, UserID: g.CreatorID, Role: RoleAdmin, JoinedAt: time.Now()}
	g.Members = append([]*GroupMember{creator}, g.Members...)
}

// Attachment is an opaque reference to uploaded binary content. The URL is
// produced by the attachment storage collaborator and passed through
// verbatim, never rewritten.
type Attachment struct {
	Type string `json:"type" validate:"required"`
	URL  string `json:"url" validate:"required,url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// AttachmentList is stored as a JSONB column
type AttachmentList []Attachment

func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected attachments column type %T", value)
	}
	return json.Unmarshal(bytes, a)
}

func (a AttachmentList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

// ReadReceipt records that a reader has seen a message
type ReadReceipt struct {
	UserID int64     `json:"user_id" db:"user_id"`
	ReadAt time.Time `json:"read_at" db:"read_at"`
}

// Message is a chat message. Content is immutable once created; only the
// readBy set grows and the deleted flag may flip (sender only).
type Message struct {
	ID             int64          `json:"id" db:"id"`
	ChatType       ChatType       `json:"chat_type" db:"chat_type"`
	ChatID         int64          `json:"chat_id" db:"chat_id"`
	SenderID       int64          `json:"sender_id" db:"sender_id"`
	Text           string         `json:"text" db:"text"`
	Attachments    AttachmentList `json:"attachments" db:"attachments"`
	ParticipantIDs []int64        `json:"participant_ids" db:"-"`
	IsDeleted      bool           `json:"-" db:"is_deleted"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`

	// Loaded with the message
	ReadBy []ReadReceipt `json:"read_by,omitempty"`
	Sender *UserInfo     `json:"sender,omitempty"`
}

// RoomID returns the fan-out room this message belongs to
func (m *Message) RoomID() string {
	if m.ChatType == TypeGroup {
		return GroupRoomID(m.ChatID)
	}
	// Private participant set is always the pair
	if len(m.ParticipantIDs) == 2 {
		return PairKey(m.ParticipantIDs[0], m.ParticipantIDs[1])
	}
	return ""
}

// Preview returns the text used for lastMessage caches and notifications
func (m *Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	if len(m.Attachments) > 0 {
		switch m.Attachments[0].Type {
		case "image":
			return "Sent an image"
		case "video":
			return "Sent a video"
		case "audio":
			return "Sent an audio message"
		default:
			return "Sent a file"
		}
	}
	return ""
}

// Request DTOs

type OpenPrivateChatRequest struct {
	RecipientID int64 `json:"recipientId" validate:"required,gt=0"`
}

type SendMessageRequest struct {
	ChatID      int64        `json:"chatId" validate:"required,gt=0"`
	ChatType    string       `json:"chatType" validate:"required,oneof=private group"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments" validate:"omitempty,dive"`
}

type CreateGroupRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=100"`
	Description string              `json:"description" validate:"max=500"`
	AvatarURL   *string             `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	MemberIDs   []int64             `json:"members"`
	Settings    *GroupSettingsPatch `json:"settings,omitempty"`
}

type UpdateGroupRequest struct {
	Name        *string             `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string             `json:"description,omitempty" validate:"omitempty,max=500"`
	AvatarURL   *string             `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	Settings    *GroupSettingsPatch `json:"settings,omitempty"`
}

type AddMembersRequest struct {
	MemberIDs []int64 `json:"members" validate:"required,min=1"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

type MarkChatReadRequest struct {
	ChatID   int64  `json:"chatId" validate:"required,gt=0"`
	ChatType string `json:"chatType" validate:"required,oneof=private group"`
}

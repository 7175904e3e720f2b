// internal/chat/repository.go

package chat

import (
	"context"
	"time"
)

// Repository is the durable store behind the chat core. Read-modify-write
// sequences that could lose updates under concurrent sends are expressed as
// single conditional statements by the implementation, not as read-then-write
// pairs here.
type Repository interface {
	// Private chats
	FindOrCreatePrivateChat(ctx context.Context, userA, userB int64) (*PrivateChat, bool, error)
	GetPrivateChat(ctx context.Context, chatID int64) (*PrivateChat, error)
	TouchPrivateLastRead(ctx context.Context, chatID, userID int64, at time.Time) error
	SetBlocked(ctx context.Context, chatID, userID int64, blocked bool) error
	DeactivatePrivateChat(ctx context.Context, chatID int64) error
	UpdatePrivateLastMessage(ctx context.Context, chatID int64, lm *LastMessage) error
	RecomputePrivateLastMessage(ctx context.Context, chatID int64) error

	// Groups
	CreateGroup(ctx context.Context, group *ChatGroup) error
	GetGroup(ctx context.Context, groupID int64) (*ChatGroup, error)
	GetGroupMember(ctx context.Context, groupID, userID int64) (*GroupMember, error)
	AddGroupMembers(ctx context.Context, groupID int64, members []*GroupMember) ([]int64, error)
	RemoveGroupMember(ctx context.Context, groupID, userID int64) (bool, error)
	UpdateMemberRole(ctx context.Context, groupID, userID int64, role GroupRole) error
	PromoteEarliestMemberIfNoAdmin(ctx context.Context, groupID int64) (int64, error)
	CountGroupMembers(ctx context.Context, groupID int64) (int, error)
	UpdateGroup(ctx context.Context, groupID int64, name, description, avatarURL *string, settings *GroupSettings) error
	DeactivateGroup(ctx context.Context, groupID int64) error
	DeactivateGroupIfEmpty(ctx context.Context, groupID int64) (bool, error)
	TouchGroupLastRead(ctx context.Context, groupID, userID int64, at time.Time) error
	UpdateGroupLastMessage(ctx context.Context, groupID int64, lm *LastMessage) error
	RecomputeGroupLastMessage(ctx context.Context, groupID int64) error

	// Messages
	CreateMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, messageID int64) (*Message, error)
	ListMessages(ctx context.Context, chatType ChatType, chatID int64, limit, offset int) ([]*Message, error)
	MarkMessageRead(ctx context.Context, messageID, userID int64, at time.Time) (bool, error)
	MarkAllMessagesRead(ctx context.Context, chatType ChatType, chatID, userID int64, at time.Time) (int64, error)
	SoftDeleteMessage(ctx context.Context, messageID, senderID int64) (bool, error)

	// Accounts (read-only; owned by the identity collaborator)
	GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error)
	GetUsersInfo(ctx context.Context, userIDs []int64) (map[int64]*UserInfo, error)
	ResolveUserIDs(ctx context.Context, userIDs []int64) ([]int64, error)
}

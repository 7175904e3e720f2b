// internal/chat/service.go
// Business rules for the chat core. All authorization checks live here so the
// realtime path and the HTTP fallback share identical semantics.

package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/notifications"
)

// NotificationSink receives the durable fan-out records the chat core emits.
// Realtime delivery is handled separately by the hub.
type NotificationSink interface {
	Create(ctx context.Context, n *notifications.Notification) error
	MarkDelivered(ctx context.Context, notificationID int64) error
	MarkChatRead(ctx context.Context, recipientID int64, chatKind string, chatID int64) error
}

type Service interface {
	// Private chats
	OpenPrivateChat(ctx context.Context, userID, peerID int64) (*PrivateChat, bool, error)
	GetPrivateChat(ctx context.Context, chatID, userID int64) (*PrivateChat, error)
	BlockPeer(ctx context.Context, chatID, userID int64) error
	UnblockPeer(ctx context.Context, chatID, userID int64) error
	DeletePrivateChat(ctx context.Context, chatID, userID int64) error

	// Messages
	SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*Message, error)
	ListMessages(ctx context.Context, userID int64, chatType ChatType, chatID int64, limit, offset int) ([]*Message, error)
	MarkMessageRead(ctx context.Context, messageID, userID int64) (bool, error)
	MarkChatRead(ctx context.Context, userID int64, chatType ChatType, chatID int64) error
	TouchGroupRead(ctx context.Context, groupID, userID int64) error
	DeleteMessage(ctx context.Context, messageID, userID int64) (*Message, error)

	// Accounts
	UsersInfo(ctx context.Context, userIDs []int64) (map[int64]*UserInfo, error)

	// Groups
	CreateGroup(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*ChatGroup, error)
	GetGroup(ctx context.Context, groupID, userID int64) (*ChatGroup, error)
	UpdateGroup(ctx context.Context, groupID, userID int64, req *UpdateGroupRequest) (*ChatGroup, error)
	DeleteGroup(ctx context.Context, groupID, userID int64) error
	AddMembers(ctx context.Context, groupID, actorID int64, memberIDs []int64) ([]int64, error)
	RemoveMember(ctx context.Context, groupID, actorID, targetID int64) error
	LeaveGroup(ctx context.Context, groupID, userID int64) error
	ChangeMemberRole(ctx context.Context, groupID, actorID, targetID int64, role GroupRole) error
}

type chatService struct {
	repo   Repository
	notifs NotificationSink
}

// NewService wires the chat core to its store and the notification sink
func NewService(repo Repository, notifs NotificationSink) Service {
	return &chatService{repo: repo, notifs: notifs}
}

// OpenPrivateChat finds or creates the single active conversation for the
// pair. The caller's lastRead is stamped so a freshly opened chat never shows
// phantom unread state.
func (s *chatService) OpenPrivateChat(ctx context.Context, userID, peerID int64) (*PrivateChat, bool, error) {
	if userID == peerID {
		return nil, false, apperrors.Validation("Cannot open a chat with yourself")
	}

	if _, err := s.repo.GetUserInfo(ctx, peerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, apperrors.NotFound("User not found")
		}
		return nil, false, apperrors.Storage(err)
	}

	chat, created, err := s.repo.FindOrCreatePrivateChat(ctx, userID, peerID)
	if err != nil {
		return nil, false, apperrors.Storage(err)
	}

	if err := s.repo.TouchPrivateLastRead(ctx, chat.ID, userID, time.Now()); err != nil {
		return nil, false, apperrors.Storage(err)
	}

	return chat, created, nil
}

func (s *chatService) GetPrivateChat(ctx context.Context, chatID, userID int64) (*PrivateChat, error) {
	chat, err := s.loadPrivateChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, apperrors.Authorization("You are not a participant of this chat")
	}
	return chat, nil
}

// BlockPeer is directional: it stops the peer from messaging the caller while
// the caller may still message the peer.
func (s *chatService) BlockPeer(ctx context.Context, chatID, userID int64) error {
	return s.setBlocked(ctx, chatID, userID, true)
}

func (s *chatService) UnblockPeer(ctx context.Context, chatID, userID int64) error {
	return s.setBlocked(ctx, chatID, userID, false)
}

func (s *chatService) setBlocked(ctx context.Context, chatID, userID int64, blocked bool) error {
	chat, err := s.loadPrivateChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return apperrors.Authorization("You are not a participant of this chat")
	}
	if err := s.repo.SetBlocked(ctx, chatID, userID, blocked); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

// DeletePrivateChat deactivates the conversation. The pair key's partial
// unique index only covers active rows, so a later OpenPrivateChat starts a
// fresh conversation.
func (s *chatService) DeletePrivateChat(ctx context.Context, chatID, userID int64) error {
	chat, err := s.loadPrivateChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return apperrors.Authorization("You are not a participant of this chat")
	}
	if err := s.repo.DeactivatePrivateChat(ctx, chatID); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

// SendMessage is the single send path. Both the websocket event handler and
// the HTTP fallback call it, so every rule here applies to both transports.
func (s *chatService) SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*Message, error) {
	if !ValidChatType(req.ChatType) {
		return nil, apperrors.Validation("Invalid chat type")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Attachments) == 0 {
		return nil, apperrors.Validation("Message must have text or attachments")
	}

	message := &Message{
		ChatType:    ChatType(req.ChatType),
		ChatID:      req.ChatID,
		SenderID:    senderID,
		Text:        text,
		Attachments: req.Attachments,
	}

	switch message.ChatType {
	case TypePrivate:
		chat, err := s.loadPrivateChat(ctx, req.ChatID)
		if err != nil {
			return nil, err
		}
		if !chat.HasParticipant(senderID) {
			return nil, apperrors.Authorization("You are not a participant of this chat")
		}
		// Blocking is directional: the recipient having blocked the sender
		// stops delivery, not the other way round.
		peerID := chat.PeerOf(senderID)
		for _, p := range chat.Participants {
			if p.UserID == peerID && p.IsBlocked {
				return nil, apperrors.Authorization("You cannot message this user")
			}
		}
		message.ParticipantIDs = []int64{chat.UserA, chat.UserB}

	case TypeGroup:
		group, err := s.loadGroup(ctx, req.ChatID)
		if err != nil {
			return nil, err
		}
		member := group.Member(senderID)
		if member == nil {
			return nil, apperrors.Authorization("You are not a member of this group")
		}
		// Admins always pass the permission gate
		if group.Settings.SendMessages == PermAdminsOnly && member.Role != RoleAdmin {
			return nil, apperrors.Authorization("Only admins can send messages in this group")
		}
		message.ParticipantIDs = group.MemberIDs()
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, apperrors.Storage(err)
	}

	lm := &LastMessage{Text: message.Preview(), SenderID: senderID, SentAt: message.CreatedAt}
	var err error
	if message.ChatType == TypePrivate {
		err = s.repo.UpdatePrivateLastMessage(ctx, message.ChatID, lm)
	} else {
		err = s.repo.UpdateGroupLastMessage(ctx, message.ChatID, lm)
	}
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	if sender, err := s.repo.GetUserInfo(ctx, senderID); err == nil {
		message.Sender = sender
	}

	return message, nil
}

func (s *chatService) ListMessages(ctx context.Context, userID int64, chatType ChatType, chatID int64, limit, offset int) ([]*Message, error) {
	if err := s.requireMembership(ctx, chatType, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.repo.ListMessages(ctx, chatType, chatID, limit, offset)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	return messages, nil
}

// MarkMessageRead appends the reader to the message's readBy set. Idempotent:
// re-reading reports appended=false and changes nothing. Senders never appear
// in their own readBy set.
func (s *chatService) MarkMessageRead(ctx context.Context, messageID, userID int64) (bool, error) {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, apperrors.NotFound("Message not found")
		}
		return false, apperrors.Storage(err)
	}
	if !containsID(message.ParticipantIDs, userID) {
		return false, apperrors.Authorization("You are not a participant of this chat")
	}
	if message.SenderID == userID {
		return false, nil
	}

	appended, err := s.repo.MarkMessageRead(ctx, messageID, userID, time.Now())
	if err != nil {
		return false, apperrors.Storage(err)
	}
	return appended, nil
}

// MarkChatRead marks every unread message in the chat read for the caller and
// clears the matching notification backlog.
func (s *chatService) MarkChatRead(ctx context.Context, userID int64, chatType ChatType, chatID int64) error {
	if err := s.requireMembership(ctx, chatType, chatID, userID); err != nil {
		return err
	}

	now := time.Now()
	if _, err := s.repo.MarkAllMessagesRead(ctx, chatType, chatID, userID, now); err != nil {
		return apperrors.Storage(err)
	}

	if chatType == TypePrivate {
		err := s.repo.TouchPrivateLastRead(ctx, chatID, userID, now)
		if err != nil {
			return apperrors.Storage(err)
		}
	} else {
		if err := s.repo.TouchGroupLastRead(ctx, chatID, userID, now); err != nil {
			return apperrors.Storage(err)
		}
	}

	if s.notifs != nil {
		if err := s.notifs.MarkChatRead(ctx, userID, string(chatType), chatID); err != nil {
			return err
		}
	}
	return nil
}

// TouchGroupRead stamps the member's lastReadAt when they enter the group
// room, mirroring what OpenPrivateChat does for private chats. Members only.
func (s *chatService) TouchGroupRead(ctx context.Context, groupID, userID int64) error {
	if _, err := s.repo.GetGroupMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Authorization("You are not a member of this group")
		}
		return apperrors.Storage(err)
	}
	if err := s.repo.TouchGroupLastRead(ctx, groupID, userID, time.Now()); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

// DeleteMessage soft-deletes. Only the sender may delete, and the chat's
// lastMessage cache is recomputed in case the deleted message was the latest.
func (s *chatService) DeleteMessage(ctx context.Context, messageID, userID int64) (*Message, error) {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("Message not found")
		}
		return nil, apperrors.Storage(err)
	}
	if message.SenderID != userID {
		return nil, apperrors.Authorization("Only the sender can delete a message")
	}

	deleted, err := s.repo.SoftDeleteMessage(ctx, messageID, userID)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if !deleted {
		return nil, apperrors.NotFound("Message not found")
	}

	if message.ChatType == TypePrivate {
		err = s.repo.RecomputePrivateLastMessage(ctx, message.ChatID)
	} else {
		err = s.repo.RecomputeGroupLastMessage(ctx, message.ChatID)
	}
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	message.IsDeleted = true
	return message, nil
}

// UsersInfo resolves account snapshots for the given identities
func (s *chatService) UsersInfo(ctx context.Context, userIDs []int64) (map[int64]*UserInfo, error) {
	info, err := s.repo.GetUsersInfo(ctx, userIDs)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	return info, nil
}

// Helpers

func (s *chatService) loadPrivateChat(ctx context.Context, chatID int64) (*PrivateChat, error) {
	chat, err := s.repo.GetPrivateChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("Chat not found")
		}
		return nil, apperrors.Storage(err)
	}
	if !chat.IsActive {
		return nil, apperrors.NotFound("Chat not found")
	}
	return chat, nil
}

func (s *chatService) loadGroup(ctx context.Context, groupID int64) (*ChatGroup, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("Group not found")
		}
		return nil, apperrors.Storage(err)
	}
	if !group.IsActive {
		return nil, apperrors.NotFound("Group not found")
	}
	return group, nil
}

func (s *chatService) requireMembership(ctx context.Context, chatType ChatType, chatID, userID int64) error {
	switch chatType {
	case TypePrivate:
		chat, err := s.loadPrivateChat(ctx, chatID)
		if err != nil {
			return err
		}
		if !chat.HasParticipant(userID) {
			return apperrors.Authorization("You are not a participant of this chat")
		}
	case TypeGroup:
		group, err := s.loadGroup(ctx, chatID)
		if err != nil {
			return err
		}
		if group.Member(userID) == nil {
			return apperrors.Authorization("You are not a member of this group")
		}
	default:
		return apperrors.Validation("Invalid chat type")
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

package chat

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/notifications"
)

// fakeRepo is an in-memory Repository for service tests
type fakeRepo struct {
	mu sync.Mutex

	nextChatID    int64
	nextGroupID   int64
	nextMessageID int64
	clock         time.Time

	privateChats map[int64]*PrivateChat
	groups       map[int64]*ChatGroup
	messages     map[int64]*Message
	reads        map[int64]map[int64]time.Time
	users        map[int64]*UserInfo
}

func newFakeRepo(users ...*UserInfo) *fakeRepo {
	r := &fakeRepo{
		clock:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		privateChats: make(map[int64]*PrivateChat),
		groups:       make(map[int64]*ChatGroup),
		messages:     make(map[int64]*Message),
		reads:        make(map[int64]map[int64]time.Time),
		users:        make(map[int64]*UserInfo),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// tick returns a strictly increasing timestamp
func (r *fakeRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeRepo) FindOrCreatePrivateChat(ctx context.Context, userA, userB int64) (*PrivateChat, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userA > userB {
		userA, userB = userB, userA
	}
	key := PairKey(userA, userB)
	for _, c := range r.privateChats {
		if c.PairKey == key && c.IsActive {
			return c, false, nil
		}
	}

	r.nextChatID++
	now := r.tick()
	chat := &PrivateChat{
		ID:        r.nextChatID,
		PairKey:   key,
		UserA:     userA,
		UserB:     userB,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []*PrivateParticipant{
			{ChatID: r.nextChatID, UserID: userA},
			{ChatID: r.nextChatID, UserID: userB},
		},
	}
	r.privateChats[chat.ID] = chat
	return chat, true, nil
}

func (r *fakeRepo) GetPrivateChat(ctx context.Context, chatID int64) (*PrivateChat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.privateChats[chatID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return chat, nil
}

func (r *fakeRepo) TouchPrivateLastRead(ctx context.Context, chatID, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chat, ok := r.privateChats[chatID]; ok {
		for _, p := range chat.Participants {
			if p.UserID == userID {
				t := at
				p.LastReadAt = &t
			}
		}
	}
	return nil
}

func (r *fakeRepo) SetBlocked(ctx context.Context, chatID, userID int64, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chat, ok := r.privateChats[chatID]; ok {
		for _, p := range chat.Participants {
			if p.UserID == userID {
				p.IsBlocked = blocked
			}
		}
	}
	return nil
}

func (r *fakeRepo) DeactivatePrivateChat(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chat, ok := r.privateChats[chatID]; ok {
		chat.IsActive = false
	}
	return nil
}

func (r *fakeRepo) UpdatePrivateLastMessage(ctx context.Context, chatID int64, lm *LastMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chat, ok := r.privateChats[chatID]; ok {
		chat.LastMessage = lm
	}
	return nil
}

func (r *fakeRepo) RecomputePrivateLastMessage(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chat, ok := r.privateChats[chatID]; ok {
		chat.LastMessage = r.latestMessageLocked(TypePrivate, chatID)
	}
	return nil
}

func (r *fakeRepo) latestMessageLocked(chatType ChatType, chatID int64) *LastMessage {
	var latest *Message
	for _, m := range r.messages {
		if m.ChatType != chatType || m.ChatID != chatID || m.IsDeleted {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil
	}
	return &LastMessage{Text: latest.Preview(), SenderID: latest.SenderID, SentAt: latest.CreatedAt}
}

func (r *fakeRepo) CreateGroup(ctx context.Context, group *ChatGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGroupID++
	group.ID = r.nextGroupID
	now := r.tick()
	group.CreatedAt = now
	group.UpdatedAt = now
	for _, m := range group.Members {
		m.GroupID = group.ID
		m.JoinedAt = r.tick()
	}
	r.groups[group.ID] = group
	return nil
}

func (r *fakeRepo) GetGroup(ctx context.Context, groupID int64) (*ChatGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return group, nil
}

func (r *fakeRepo) GetGroupMember(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[groupID]; ok {
		if m := group.Member(userID); m != nil {
			return m, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeRepo) AddGroupMembers(ctx context.Context, groupID int64, members []*GroupMember) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	var added []int64
	for _, m := range members {
		if group.Member(m.UserID) != nil {
			continue
		}
		m.GroupID = groupID
		m.JoinedAt = r.tick()
		group.Members = append(group.Members, m)
		added = append(added, m.UserID)
	}
	return added, nil
}

func (r *fakeRepo) RemoveGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok {
		return false, nil
	}
	for i, m := range group.Members {
		if m.UserID == userID {
			group.Members = append(group.Members[:i], group.Members[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) UpdateMemberRole(ctx context.Context, groupID, userID int64, role GroupRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[groupID]; ok {
		if m := group.Member(userID); m != nil {
			m.Role = role
		}
	}
	return nil
}

func (r *fakeRepo) PromoteEarliestMemberIfNoAdmin(ctx context.Context, groupID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok || group.AdminCount() > 0 || len(group.Members) == 0 {
		return 0, nil
	}
	members := make([]*GroupMember, len(group.Members))
	copy(members, group.Members)
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	members[0].Role = RoleAdmin
	return members[0].UserID, nil
}

func (r *fakeRepo) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[groupID]; ok {
		return len(group.Members), nil
	}
	return 0, nil
}

func (r *fakeRepo) UpdateGroup(ctx context.Context, groupID int64, name, description, avatarURL *string, settings *GroupSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok {
		return sql.ErrNoRows
	}
	if name != nil {
		group.Name = *name
	}
	if description != nil {
		group.Description = *description
	}
	if avatarURL != nil {
		group.AvatarURL = avatarURL
	}
	if settings != nil {
		group.Settings = *settings
	}
	return nil
}

func (r *fakeRepo) DeactivateGroup(ctx context.Context, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[groupID]; ok {
		group.IsActive = false
	}
	return nil
}

func (r *fakeRepo) DeactivateGroupIfEmpty(ctx context.Context, groupID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok || !group.IsActive || len(group.Members) > 0 {
		return false, nil
	}
	group.IsActive = false
	return true, nil
}

func (r *fakeRepo) TouchGroupLastRead(ctx context.Context, groupID, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[groupID]; ok {
		if m := group.Member(userID); m != nil {
			t := at
			m.LastReadAt = &t
		}
	}
	return nil
}

func (r *fakeRepo) UpdateGroupLastMessage(ctx context.Context, groupID int64, lm *LastMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[groupID]; ok {
		group.LastMessage = lm
	}
	return nil
}

func (r *fakeRepo) RecomputeGroupLastMessage(ctx context.Context, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.groups[groupID]; ok {
		group.LastMessage = r.latestMessageLocked(TypeGroup, groupID)
	}
	return nil
}

func (r *fakeRepo) CreateMessage(ctx context.Context, message *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextMessageID++
	message.ID = r.nextMessageID
	message.CreatedAt = r.tick()
	r.messages[message.ID] = message
	return nil
}

func (r *fakeRepo) GetMessage(ctx context.Context, messageID int64) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[messageID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m, nil
}

func (r *fakeRepo) ListMessages(ctx context.Context, chatType ChatType, chatID int64, limit, offset int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Message
	for _, m := range r.messages {
		if m.ChatType == chatType && m.ChatID == chatID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) MarkMessageRead(ctx context.Context, messageID, userID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[messageID]
	if !ok || m.IsDeleted {
		return false, nil
	}
	set, ok := r.reads[messageID]
	if !ok {
		set = make(map[int64]time.Time)
		r.reads[messageID] = set
	}
	if _, seen := set[userID]; seen {
		return false, nil
	}
	set[userID] = at
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
	return true, nil
}

func (r *fakeRepo) MarkAllMessagesRead(ctx context.Context, chatType ChatType, chatID, userID int64, at time.Time) (int64, error) {
	r.mu.Lock()
	ids := make([]int64, 0)
	for _, m := range r.messages {
		if m.ChatType == chatType && m.ChatID == chatID && !m.IsDeleted && m.SenderID != userID {
			ids = append(ids, m.ID)
		}
	}
	r.mu.Unlock()

	var n int64
	for _, id := range ids {
		appended, _ := r.MarkMessageRead(ctx, id, userID, at)
		if appended {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) SoftDeleteMessage(ctx context.Context, messageID, senderID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[messageID]
	if !ok || m.IsDeleted || m.SenderID != senderID {
		return false, nil
	}
	m.IsDeleted = true
	return true, nil
}

func (r *fakeRepo) GetUserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (r *fakeRepo) GetUsersInfo(ctx context.Context, userIDs []int64) (map[int64]*UserInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64]*UserInfo)
	for _, id := range userIDs {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *fakeRepo) ResolveUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var resolved []int64
	for _, id := range userIDs {
		if _, ok := r.users[id]; ok {
			resolved = append(resolved, id)
		}
	}
	return resolved, nil
}

// fakeSink records created notifications
type fakeSink struct {
	mu        sync.Mutex
	nextID    int64
	created   []*notifications.Notification
	delivered []int64
	chatRead  []int64
}

func (s *fakeSink) Create(ctx context.Context, n *notifications.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	n.ID = s.nextID
	s.created = append(s.created, n)
	return nil
}

func (s *fakeSink) MarkDelivered(ctx context.Context, notificationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, notificationID)
	return nil
}

func (s *fakeSink) MarkChatRead(ctx context.Context, recipientID int64, chatKind string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatRead = append(s.chatRead, recipientID)
	return nil
}

func (s *fakeSink) forRecipient(recipientID int64) []*notifications.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notifications.Notification
	for _, n := range s.created {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

func (s *fakeSink) ofType(typ notifications.Type) []*notifications.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notifications.Notification
	for _, n := range s.created {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

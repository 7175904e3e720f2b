// internal/chat/hub.go
// The hub owns every live connection and room. Registration and disconnect
// flow through its Run loop; protocol events are dispatched synchronously
// from each connection's read pump so per-connection order is preserved.

package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/common/apperrors"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/notifications"
	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/presence"
)

// PresenceStore is the durable presence state the hub reads and writes.
// *presence.StatusStore satisfies it.
type PresenceStore interface {
	SetStatus(ctx context.Context, userID int64, status presence.Status) error
	SetPrivacy(ctx context.Context, userID int64, showOnlineStatus bool) error
	Get(ctx context.Context, userID int64) (*presence.UserPresence, error)
	ListVisible(ctx context.Context, userIDs []int64) ([]*presence.UserPresence, error)
}

type Hub struct {
	service  Service
	notifs   NotificationSink
	registry *presence.Registry
	status   PresenceStore
	typing   *presence.TypingAggregator

	mu      sync.RWMutex
	clients map[string]*Client            // by connection ID
	rooms   map[string]map[string]*Client // roomID -> connection ID -> client

	register   chan *Client
	unregister chan *Client
}

func NewHub(service Service, notifs NotificationSink, registry *presence.Registry, status PresenceStore, typing *presence.TypingAggregator) *Hub {
	return &Hub{
		service:    service,
		notifs:     notifs,
		registry:   registry,
		status:     status,
		typing:     typing,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes connection lifecycle events until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(ctx, client)

		case client := <-h.unregister:
			h.unregisterClient(ctx, client)

		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				c.close()
			}
			h.clients = make(map[string]*Client)
			h.rooms = make(map[string]map[string]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// Register hands a freshly upgraded connection to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) registerClient(ctx context.Context, client *Client) {
	// At most one connection per identity. A replaced connection is closed
	// here; its own disconnect will arrive later as a stale unregister.
	if replaced := h.registry.Register(client); replaced != nil {
		if old, ok := replaced.(*Client); ok {
			h.removeFromRooms(old)
			h.mu.Lock()
			delete(h.clients, old.ID())
			h.mu.Unlock()
			old.close()
		}
	}

	h.mu.Lock()
	h.clients[client.ID()] = client
	h.mu.Unlock()
	metricActiveConnections.Set(float64(h.registry.Count()))

	if err := h.status.SetStatus(ctx, client.userID, presence.StatusOnline); err != nil {
		log.Printf("Failed to persist online status for user %d: %v", client.userID, err)
	}

	p, err := h.status.Get(ctx, client.userID)
	if err != nil {
		log.Printf("Failed to load presence for user %d: %v", client.userID, err)
	}
	if p == nil || p.ShowOnlineStatus {
		h.broadcastAll(NewEvent(EvUserOnline, UserStatusPayload{
			UserID: client.userID,
			Status: string(presence.StatusOnline),
		}), client.ID())
	}

	// Deliver the current visible online list to the new connection
	visible, err := h.status.ListVisible(ctx, h.registry.OnlineUserIDs())
	if err != nil {
		log.Printf("Failed to build online list for user %d: %v", client.userID, err)
		return
	}
	online := make([]OnlineUser, 0, len(visible))
	for _, v := range visible {
		online = append(online, OnlineUser{UserID: v.UserID, Status: string(v.Status), LastActiveAt: v.LastActiveAt})
	}
	client.Send(NewEvent(EvUsersOnline, online))
}

func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	// A disconnect racing a reconnect must not mark the newer connection's
	// identity offline. The registry arbitrates by connection ID.
	if !h.registry.Unregister(client) {
		h.removeFromRooms(client)
		h.mu.Lock()
		delete(h.clients, client.ID())
		h.mu.Unlock()
		client.close()
		return
	}

	h.removeFromRooms(client)
	h.mu.Lock()
	delete(h.clients, client.ID())
	h.mu.Unlock()
	client.close()
	metricActiveConnections.Set(float64(h.registry.Count()))

	// Privacy applies to both presence edges: a hidden identity announces
	// neither its arrival nor its departure.
	p, err := h.status.Get(ctx, client.userID)
	if err != nil {
		log.Printf("Failed to load presence for user %d: %v", client.userID, err)
	}
	if err := h.status.SetStatus(ctx, client.userID, presence.StatusOffline); err != nil {
		log.Printf("Failed to persist offline status for user %d: %v", client.userID, err)
	}
	if p == nil || p.ShowOnlineStatus {
		h.broadcastAll(NewEvent(EvUserOffline, UserStatusPayload{
			UserID: client.userID,
			Status: string(presence.StatusOffline),
		}), client.ID())
	}

	// Clear dangling typing indicators for every room the user was typing in
	for roomID, remaining := range h.typing.PurgeUser(client.userID) {
		h.broadcastTyping(ctx, roomID, remaining, "")
	}
}

// handleEvent dispatches one inbound protocol event. Called from the owning
// connection's read pump.
func (h *Hub) handleEvent(c *Client, event Event) {
	ctx := context.Background()
	metricEventsTotal.WithLabelValues(event.Event).Inc()

	var err error
	switch event.Event {
	case EvPrivateJoin:
		err = h.handlePrivateJoin(ctx, c, event.Data)
	case EvPrivateMessage:
		err = h.handlePrivateMessage(ctx, c, event.Data)
	case EvGroupJoin:
		err = h.handleGroupJoin(ctx, c, event.Data)
	case EvGroupMessage:
		err = h.handleGroupMessage(ctx, c, event.Data)
	case EvTypingStart:
		err = h.handleTyping(ctx, c, event.Data, true)
	case EvTypingStop:
		err = h.handleTyping(ctx, c, event.Data, false)
	case EvStatusUpdate:
		err = h.handleStatusUpdate(ctx, c, event.Data)
	case EvPrivacyUpdate:
		err = h.handlePrivacyUpdate(ctx, c, event.Data)
	default:
		c.Send(NewEvent(EvError, ErrorPayload{Message: "Unknown event: " + event.Event}))
		return
	}

	if err != nil {
		c.Send(NewEvent(EvError, ErrorPayload{Message: apperrors.PublicMessage(err)}))
	}
}

func (h *Hub) handlePrivateJoin(ctx context.Context, c *Client, data json.RawMessage) error {
	var payload PrivateJoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Validation("Invalid join payload")
	}

	chat, _, err := h.service.OpenPrivateChat(ctx, c.userID, payload.RecipientID)
	if err != nil {
		return err
	}

	roomID := PairKey(chat.UserA, chat.UserB)
	h.switchRoom(c, &c.privateRoom, roomID)
	c.Send(NewEvent(EvPrivateJoined, PrivateJoinedPayload{RoomID: roomID, ChatID: chat.ID}))
	return nil
}

func (h *Hub) handleGroupJoin(ctx context.Context, c *Client, data json.RawMessage) error {
	var payload GroupJoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Validation("Invalid join payload")
	}

	group, err := h.service.GetGroup(ctx, payload.GroupID, c.userID)
	if err != nil {
		return err
	}

	roomID := GroupRoomID(group.ID)
	h.switchRoom(c, &c.groupRoom, roomID)

	// Entering the room counts as catching up, like the private join path
	if err := h.service.TouchGroupRead(ctx, group.ID, c.userID); err != nil {
		return err
	}

	c.Send(NewEvent(EvGroupJoined, GroupJoinedPayload{RoomID: roomID, GroupID: group.ID}))
	h.broadcastRoom(roomID, NewEvent(EvGroupUserJoined, GroupUserJoinedPayload{
		RoomID:      roomID,
		GroupID:     group.ID,
		UserID:      c.userID,
		DisplayName: c.displayName,
	}), c.ID())
	return nil
}

func (h *Hub) handlePrivateMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var payload PrivateMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Validation("Invalid message payload")
	}

	message, err := h.service.SendMessage(ctx, c.userID, &SendMessageRequest{
		ChatID:      payload.ChatID,
		ChatType:    string(TypePrivate),
		Text:        payload.Text,
		Attachments: payload.Attachments,
	})
	if err != nil {
		return err
	}

	h.stopTypingOnSend(ctx, c, message.RoomID())
	h.EmitMessage(ctx, message)
	return nil
}

func (h *Hub) handleGroupMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var payload GroupMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Validation("Invalid message payload")
	}

	message, err := h.service.SendMessage(ctx, c.userID, &SendMessageRequest{
		ChatID:      payload.GroupID,
		ChatType:    string(TypeGroup),
		Text:        payload.Text,
		Attachments: payload.Attachments,
	})
	if err != nil {
		return err
	}

	h.stopTypingOnSend(ctx, c, message.RoomID())
	h.EmitMessage(ctx, message)
	return nil
}

// stopTypingOnSend is the implicit typing stop: sending a message ends the
// sender's typing state without requiring an explicit stop frame.
func (h *Hub) stopTypingOnSend(ctx context.Context, c *Client, roomID string) {
	if !containsID(h.typing.Snapshot(roomID), c.userID) {
		return
	}
	h.broadcastTyping(ctx, roomID, h.typing.Stop(roomID, c.userID), c.ID())
}

// EmitMessage fans a persisted message out: occupants of the room get the
// message event, other participants get a durable notification plus a
// realtime nudge if they are online. The HTTP fallback calls this too, so
// both transports share one delivery path.
func (h *Hub) EmitMessage(ctx context.Context, message *Message) {
	roomID := message.RoomID()
	eventName := EvPrivateMessage
	if message.ChatType == TypeGroup {
		eventName = EvGroupMessage
	}
	metricMessagesSent.WithLabelValues(string(message.ChatType)).Inc()

	h.mu.RLock()
	occupants := make(map[int64]struct{})
	for _, occ := range h.rooms[roomID] {
		occupants[occ.userID] = struct{}{}
	}
	h.mu.RUnlock()

	h.broadcastRoom(roomID, NewEvent(eventName, message), "")

	delivered := len(occupants)
	for _, participantID := range message.ParticipantIDs {
		if participantID == message.SenderID {
			continue
		}
		if _, inRoom := occupants[participantID]; inRoom {
			continue
		}

		var record *notifications.Notification
		if h.notifs != nil {
			record = &notifications.Notification{
				RecipientID: participantID,
				Type:        notifications.TypeNewMessage,
				SenderID:    int64Ptr(message.SenderID),
				MessageID:   int64Ptr(message.ID),
				ChatID:      int64Ptr(message.ChatID),
				ChatKind:    strPtr(string(message.ChatType)),
				Text:        senderLabel(message),
				Preview:     message.Preview(),
			}
			if err := h.notifs.Create(ctx, record); err != nil {
				log.Printf("Failed to create message notification for user %d: %v", participantID, err)
				record = nil
			}
		}

		if conn, ok := h.registry.Lookup(participantID); ok {
			if client, ok := conn.(*Client); ok {
				client.Send(NewEvent(EvNotificationMessage, NotificationMessagePayload{
					Type:     string(notifications.TypeNewMessage),
					ChatID:   message.ChatID,
					ChatType: string(message.ChatType),
					SenderID: message.SenderID,
					Preview:  message.Preview(),
				}))
				delivered++

				// The realtime nudge is this notification's delivery
				if record != nil && record.ID != 0 {
					if err := h.notifs.MarkDelivered(ctx, record.ID); err != nil {
						log.Printf("Failed to mark notification %d delivered: %v", record.ID, err)
					}
				}
			}
		}
	}
	metricFanoutReceivers.Observe(float64(delivered))
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, data json.RawMessage, start bool) error {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Validation("Invalid typing payload")
	}
	if payload.RoomID != c.privateRoom && payload.RoomID != c.groupRoom {
		return apperrors.Authorization("You have not joined this room")
	}

	var userIDs []int64
	if start {
		userIDs = h.typing.Start(payload.RoomID, c.userID)
	} else {
		userIDs = h.typing.Stop(payload.RoomID, c.userID)
	}

	h.broadcastTyping(ctx, payload.RoomID, userIDs, c.ID())
	return nil
}

// broadcastTyping resolves the typing set to display names and delivers the
// update to room occupants.
func (h *Hub) broadcastTyping(ctx context.Context, roomID string, userIDs []int64, except string) {
	users := make([]TypingUser, 0, len(userIDs))
	if len(userIDs) > 0 {
		info, err := h.service.UsersInfo(ctx, userIDs)
		if err != nil {
			log.Printf("Failed to resolve typing users for room %s: %v", roomID, err)
		}
		for _, id := range userIDs {
			name := ""
			if u, ok := info[id]; ok {
				name = u.DisplayName
				if name == "" {
					name = u.Username
				}
			}
			users = append(users, TypingUser{UserID: id, DisplayName: name})
		}
	}

	h.broadcastRoom(roomID, NewEvent(EvTypingUpdate, TypingUpdatePayload{RoomID: roomID, Users: users}), except)
}

func (h *Hub) handleStatusUpdate(ctx context.Context, c *Client, data json.RawMessage) error {
	var payload StatusUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Validation("Invalid status payload")
	}
	if !presence.ValidStatus(payload.Status) {
		return apperrors.Validation("Invalid status: " + payload.Status)
	}

	status := presence.Status(payload.Status)
	if err := h.status.SetStatus(ctx, c.userID, status); err != nil {
		return apperrors.Storage(err)
	}

	// Going invisible is never announced; observers keep whatever presence
	// they last saw, and the online list stops including the user.
	if status != presence.StatusInvisible {
		h.broadcastAll(NewEvent(EvUserStatus, UserStatusPayload{
			UserID: c.userID,
			Status: payload.Status,
		}), c.ID())
	}

	c.Send(NewEvent(EvStatusUpdated, StatusUpdatePayload{Status: payload.Status}))
	return nil
}

func (h *Hub) handlePrivacyUpdate(ctx context.Context, c *Client, data json.RawMessage) error {
	var payload PrivacyUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Validation("Invalid privacy payload")
	}

	if err := h.status.SetPrivacy(ctx, c.userID, payload.ShowOnlineStatus); err != nil {
		return apperrors.Storage(err)
	}

	if payload.ShowOnlineStatus {
		p, err := h.status.Get(ctx, c.userID)
		if err == nil && p.Status != presence.StatusInvisible {
			h.broadcastAll(NewEvent(EvUserOnline, UserStatusPayload{
				UserID: c.userID,
				Status: string(p.Status),
			}), c.ID())
		}
	} else {
		h.broadcastAll(NewEvent(EvUserOffline, UserStatusPayload{
			UserID: c.userID,
			Status: string(presence.StatusOffline),
		}), c.ID())
	}

	c.Send(NewEvent(EvPrivacyUpdated, payload))
	return nil
}

// Room bookkeeping

// switchRoom moves the client between rooms of the same kind. Joining a new
// private room implicitly leaves the previous one; same for groups.
func (h *Hub) switchRoom(c *Client, slot *string, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if *slot == roomID {
		return
	}
	if *slot != "" {
		h.leaveRoomLocked(c, *slot)
	}
	*slot = roomID

	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[roomID] = room
	}
	room[c.ID()] = c
}

func (h *Hub) removeFromRooms(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.privateRoom != "" {
		h.leaveRoomLocked(c, c.privateRoom)
		c.privateRoom = ""
	}
	if c.groupRoom != "" {
		h.leaveRoomLocked(c, c.groupRoom)
		c.groupRoom = ""
	}
}

func (h *Hub) leaveRoomLocked(c *Client, roomID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(room, c.ID())
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) broadcastRoom(roomID string, event Event, except string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.rooms[roomID] {
		if id == except {
			continue
		}
		c.Send(event)
	}
}

func (h *Hub) broadcastAll(event Event, except string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.clients {
		if id == except {
			continue
		}
		c.Send(event)
	}
}

func senderLabel(m *Message) string {
	if m.Sender != nil {
		if m.Sender.DisplayName != "" {
			return "New message from " + m.Sender.DisplayName
		}
		return "New message from " + m.Sender.Username
	}
	return "New message"
}

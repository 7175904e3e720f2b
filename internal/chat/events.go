// internal/chat/events.go
// Realtime protocol contracts: named events over a persistent connection.
// One tagged struct per event replaces the loose shapes of ad-hoc payloads.

package chat

import (
	"encoding/json"
	"log"
	"time"
)

// Event is the wire envelope for both directions
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names
const (
	EvPrivateJoin    = "private:join"
	EvPrivateMessage = "private:message"
	EvGroupJoin      = "group:join"
	EvGroupMessage   = "group:message"
	EvTypingStart    = "typing:start"
	EvTypingStop     = "typing:stop"
	EvStatusUpdate   = "status:update"
	EvPrivacyUpdate  = "privacy:update"
)

// Outbound event names
const (
	EvPrivateJoined       = "private:joined"
	EvGroupJoined         = "group:joined"
	EvGroupUserJoined     = "group:userJoined"
	EvTypingUpdate        = "typing:update"
	EvUserOnline          = "user:online"
	EvUserOffline         = "user:offline"
	EvUserStatus          = "user:status"
	EvUsersOnline         = "users:online"
	EvNotificationMessage = "notification:message"
	EvStatusUpdated       = "status:updated"
	EvPrivacyUpdated      = "privacy:updated"
	EvError               = "error"
)

// Inbound payloads

type PrivateJoinPayload struct {
	RecipientID int64 `json:"recipientId"`
}

type PrivateMessagePayload struct {
	RoomID      string       `json:"roomId"`
	RecipientID int64        `json:"recipientId"`
	ChatID      int64        `json:"chatId"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

type GroupJoinPayload struct {
	GroupID int64 `json:"groupId"`
}

type GroupMessagePayload struct {
	RoomID      string       `json:"roomId"`
	GroupID     int64        `json:"groupId"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

type TypingPayload struct {
	RoomID string `json:"roomId"`
}

type StatusUpdatePayload struct {
	Status string `json:"status"`
}

type PrivacyUpdatePayload struct {
	ShowOnlineStatus bool `json:"showOnlineStatus"`
}

// Outbound payloads

type PrivateJoinedPayload struct {
	RoomID string `json:"roomId"`
	ChatID int64  `json:"chatId"`
}

type GroupJoinedPayload struct {
	RoomID  string `json:"roomId"`
	GroupID int64  `json:"groupId"`
}

type GroupUserJoinedPayload struct {
	RoomID      string `json:"roomId"`
	GroupID     int64  `json:"groupId"`
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
}

// TypingUser is one currently-typing identity resolved to a display name
type TypingUser struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
}

type TypingUpdatePayload struct {
	RoomID string       `json:"roomId"`
	Users  []TypingUser `json:"users"`
}

type UserStatusPayload struct {
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

type OnlineUser struct {
	UserID       int64     `json:"userId"`
	Status       string    `json:"status"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

type NotificationMessagePayload struct {
	Type     string `json:"type"`
	ChatID   int64  `json:"chatId"`
	ChatType string `json:"chatType"`
	SenderID int64  `json:"senderId"`
	Preview  string `json:"preview"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEvent marshals a payload into an event envelope
func NewEvent(name string, payload interface{}) Event {
	return Event{Event: name, Data: mustMarshal(payload)}
}

func mustMarshal(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Error marshaling event payload: %v", err)
		return json.RawMessage(`{}`)
	}
	return data
}

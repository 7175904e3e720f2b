package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/presence"
)

// fakePresence is an in-memory PresenceStore
type fakePresence struct {
	mu      sync.Mutex
	records map[int64]*presence.UserPresence
}

func newFakePresence() *fakePresence {
	return &fakePresence{records: make(map[int64]*presence.UserPresence)}
}

func (f *fakePresence) recordLocked(userID int64) *presence.UserPresence {
	p, ok := f.records[userID]
	if !ok {
		p = &presence.UserPresence{UserID: userID, Status: presence.StatusOffline, ShowOnlineStatus: true}
		f.records[userID] = p
	}
	return p
}

func (f *fakePresence) SetStatus(ctx context.Context, userID int64, status presence.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.recordLocked(userID)
	p.Status = status
	p.LastActiveAt = time.Now()
	return nil
}

func (f *fakePresence) SetPrivacy(ctx context.Context, userID int64, showOnlineStatus bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordLocked(userID).ShowOnlineStatus = showOnlineStatus
	return nil
}

func (f *fakePresence) Get(ctx context.Context, userID int64) (*presence.UserPresence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := *f.recordLocked(userID)
	return &p, nil
}

func (f *fakePresence) ListVisible(ctx context.Context, userIDs []int64) ([]*presence.UserPresence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	visible := make([]*presence.UserPresence, 0, len(userIDs))
	for _, id := range userIDs {
		p := *f.recordLocked(id)
		if !p.ShowOnlineStatus || p.Status == presence.StatusInvisible {
			continue
		}
		visible = append(visible, &p)
	}
	return visible, nil
}

func newTestHub() (*Hub, Service, *fakeRepo, *fakeSink, *fakePresence) {
	svc, repo, sink := newTestService()
	fp := newFakePresence()
	hub := NewHub(svc, sink, presence.NewRegistry(), fp, presence.NewTypingAggregator())
	return hub, svc, repo, sink, fp
}

// connect registers a client with the hub without running the Run loop
func connect(hub *Hub, userID int64, name string) *Client {
	c := NewClient(hub, nil, userID, name, name)
	hub.registerClient(context.Background(), c)
	return c
}

// drainEvents empties the client's send buffer into decoded envelopes
func drainEvents(t *testing.T, c *Client) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case data := <-c.send:
			var ev Event
			require.NoError(t, json.Unmarshal(data, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventNames(events []Event) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	return names
}

func TestEmitMessageMarksNotificationDelivered(t *testing.T) {
	hub, svc, _, sink, _ := newTestHub()
	ctx := context.Background()

	chat, _, err := svc.OpenPrivateChat(ctx, 1, 2)
	require.NoError(t, err)

	bob := connect(hub, 2, "bob")
	drainEvents(t, bob)

	msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{
		ChatID: chat.ID, ChatType: string(TypePrivate), Text: "hi",
	})
	require.NoError(t, err)
	hub.EmitMessage(ctx, msg)

	created := sink.forRecipient(2)
	require.Len(t, created, 1)
	assert.Contains(t, sink.delivered, created[0].ID)
	assert.Contains(t, eventNames(drainEvents(t, bob)), EvNotificationMessage)
}

func TestEmitMessageOfflineRecipientNotDelivered(t *testing.T) {
	hub, svc, _, sink, _ := newTestHub()
	ctx := context.Background()

	chat, _, err := svc.OpenPrivateChat(ctx, 1, 2)
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{
		ChatID: chat.ID, ChatType: string(TypePrivate), Text: "hi",
	})
	require.NoError(t, err)
	hub.EmitMessage(ctx, msg)

	// The durable record exists but stays undelivered until a nudge lands
	require.Len(t, sink.forRecipient(2), 1)
	assert.Empty(t, sink.delivered)
}

func TestSendImplicitlyStopsTyping(t *testing.T) {
	hub, svc, _, _, _ := newTestHub()
	ctx := context.Background()

	chat, _, err := svc.OpenPrivateChat(ctx, 1, 2)
	require.NoError(t, err)

	alice := connect(hub, 1, "alice")
	bob := connect(hub, 2, "bob")
	require.NoError(t, hub.handlePrivateJoin(ctx, alice, mustMarshal(PrivateJoinPayload{RecipientID: 2})))
	require.NoError(t, hub.handlePrivateJoin(ctx, bob, mustMarshal(PrivateJoinPayload{RecipientID: 1})))
	room := alice.privateRoom

	require.NoError(t, hub.handleTyping(ctx, alice, mustMarshal(TypingPayload{RoomID: room}), true))
	assert.Contains(t, hub.typing.Snapshot(room), int64(1))
	drainEvents(t, bob)

	require.NoError(t, hub.handlePrivateMessage(ctx, alice, mustMarshal(PrivateMessagePayload{
		ChatID: chat.ID, Text: "done typing",
	})))

	// Sending without an explicit typing:stop frame still clears the set
	assert.Empty(t, hub.typing.Snapshot(room))

	var sawEmptyTyping bool
	for _, ev := range drainEvents(t, bob) {
		if ev.Event != EvTypingUpdate {
			continue
		}
		var payload TypingUpdatePayload
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		if len(payload.Users) == 0 {
			sawEmptyTyping = true
		}
	}
	assert.True(t, sawEmptyTyping)
}

func TestGroupJoinStampsLastRead(t *testing.T) {
	hub, svc, repo, _, _ := newTestHub()
	ctx := context.Background()

	group := createTestGroup(t, svc, 1, 2)
	bob := connect(hub, 2, "bob")

	require.NoError(t, hub.handleGroupJoin(ctx, bob, mustMarshal(GroupJoinPayload{GroupID: group.ID})))

	stored, err := repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	member := stored.Member(2)
	require.NotNil(t, member)
	assert.NotNil(t, member.LastReadAt)
}

func TestInvisibleStatusIsNotBroadcast(t *testing.T) {
	hub, _, _, _, _ := newTestHub()
	ctx := context.Background()

	alice := connect(hub, 1, "alice")
	bob := connect(hub, 2, "bob")
	drainEvents(t, alice)
	drainEvents(t, bob)

	require.NoError(t, hub.handleStatusUpdate(ctx, alice, mustMarshal(StatusUpdatePayload{Status: "invisible"})))

	assert.Empty(t, drainEvents(t, bob))
	assert.Equal(t, []string{EvStatusUpdated}, eventNames(drainEvents(t, alice)))

	// A visible status change still reaches observers
	require.NoError(t, hub.handleStatusUpdate(ctx, alice, mustMarshal(StatusUpdatePayload{Status: "away"})))
	assert.Contains(t, eventNames(drainEvents(t, bob)), EvUserStatus)
}

func TestDisconnectRespectsPrivacy(t *testing.T) {
	hub, _, _, _, fp := newTestHub()
	ctx := context.Background()

	require.NoError(t, fp.SetPrivacy(ctx, 1, false))
	alice := connect(hub, 1, "alice")
	bob := connect(hub, 2, "bob")
	drainEvents(t, bob)

	hub.unregisterClient(ctx, alice)
	assert.NotContains(t, eventNames(drainEvents(t, bob)), EvUserOffline)

	// A visible identity's departure is announced
	carol := connect(hub, 3, "carol")
	drainEvents(t, bob)
	hub.unregisterClient(ctx, carol)
	assert.Contains(t, eventNames(drainEvents(t, bob)), EvUserOffline)
}

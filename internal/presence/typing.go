// internal/presence/typing.go
// Ephemeral per-room typing sets. Never persisted.

package presence

import (
	"sync"
)

// TypingAggregator tracks which identities are currently composing a message
// in each room.
type TypingAggregator struct {
	mu    sync.Mutex
	rooms map[string]map[int64]struct{}
}

// NewTypingAggregator creates an empty aggregator
func NewTypingAggregator() *TypingAggregator {
	return &TypingAggregator{
		rooms: make(map[string]map[int64]struct{}),
	}
}

// Start marks userID as typing in roomID and returns the updated set
func (t *TypingAggregator) Start(roomID string, userID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.rooms[roomID]
	if !ok {
		set = make(map[int64]struct{})
		t.rooms[roomID] = set
	}
	set[userID] = struct{}{}
	return snapshotLocked(set)
}

// Stop removes userID from roomID's typing set and returns the updated set
func (t *TypingAggregator) Stop(roomID string, userID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.rooms, roomID)
		return nil
	}
	return snapshotLocked(set)
}

// Snapshot returns the current typing set for a room
func (t *TypingAggregator) Snapshot(roomID string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return snapshotLocked(set)
}

// PurgeUser removes userID from every typing set it belongs to and returns
// the affected rooms with their updated sets, so the caller can re-broadcast.
func (t *TypingAggregator) PurgeUser(userID int64) map[string][]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	affected := make(map[string][]int64)
	for roomID, set := range t.rooms {
		if _, ok := set[userID]; !ok {
			continue
		}
		delete(set, userID)
		if len(set) == 0 {
			delete(t.rooms, roomID)
			affected[roomID] = nil
		} else {
			affected[roomID] = snapshotLocked(set)
		}
	}
	return affected
}

func snapshotLocked(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

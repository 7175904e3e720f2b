package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubConn struct {
	id     string
	userID int64
}

func (c *stubConn) ID() string    { return c.id }
func (c *stubConn) UserID() int64 { return c.userID }

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	conn := &stubConn{id: "c1", userID: 7}

	replaced := r.Register(conn)
	assert.Nil(t, replaced)
	assert.True(t, r.IsOnline(7))
	assert.Equal(t, 1, r.Count())

	got, ok := r.Lookup(7)
	assert.True(t, ok)
	assert.Equal(t, "c1", got.ID())
}

func TestRegistryReplacesOlderConnection(t *testing.T) {
	r := NewRegistry()
	old := &stubConn{id: "c1", userID: 7}
	newer := &stubConn{id: "c2", userID: 7}

	r.Register(old)
	replaced := r.Register(newer)

	assert.Equal(t, old, replaced)
	assert.Equal(t, 1, r.Count())
	got, _ := r.Lookup(7)
	assert.Equal(t, "c2", got.ID())
}

func TestRegistryStaleUnregisterKeepsNewerConnection(t *testing.T) {
	r := NewRegistry()
	old := &stubConn{id: "c1", userID: 7}
	newer := &stubConn{id: "c2", userID: 7}

	r.Register(old)
	r.Register(newer)

	// The old connection's late disconnect must not clobber the new one
	assert.False(t, r.Unregister(old))
	assert.True(t, r.IsOnline(7))

	assert.True(t, r.Unregister(newer))
	assert.False(t, r.IsOnline(7))
}

func TestRegistryOnlineUserIDs(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubConn{id: "a", userID: 1})
	r.Register(&stubConn{id: "b", userID: 2})
	r.Register(&stubConn{id: "c", userID: 3})

	assert.ElementsMatch(t, []int64{1, 2, 3}, r.OnlineUserIDs())
	assert.Len(t, r.Connections(), 3)
}

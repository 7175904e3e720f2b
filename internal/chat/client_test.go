package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendQueuesEvent(t *testing.T) {
	c := NewClient(nil, nil, 7, "grace", "Grace")

	c.Send(NewEvent(EvUserOnline, UserStatusPayload{UserID: 7, Status: "online"}))

	var ev Event
	require.NoError(t, json.Unmarshal(<-c.send, &ev))
	assert.Equal(t, EvUserOnline, ev.Event)
}

func TestClientSendAfterCloseIsDropped(t *testing.T) {
	c := NewClient(nil, nil, 7, "grace", "Grace")
	c.close()

	// A disconnect racing a fan-out must drop the event, not crash
	assert.NotPanics(t, func() {
		c.Send(NewEvent(EvUserOnline, UserStatusPayload{UserID: 7, Status: "online"}))
	})
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := NewClient(nil, nil, 7, "grace", "Grace")

	assert.NotPanics(t, func() {
		c.close()
		c.close()
	})
}

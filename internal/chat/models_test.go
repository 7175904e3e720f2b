package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	// Both sides of the pair compute the same key
	assert.Equal(t, "private:3:7", PairKey(3, 7))
	assert.Equal(t, "private:3:7", PairKey(7, 3))
	assert.Equal(t, "private:5:5", PairKey(5, 5))
}

func TestGroupRoomID(t *testing.T) {
	assert.Equal(t, "group:42", GroupRoomID(42))
}

func TestMessageRoomID(t *testing.T) {
	private := &Message{ChatType: TypePrivate, ParticipantIDs: []int64{9, 4}}
	assert.Equal(t, "private:4:9", private.RoomID())

	group := &Message{ChatType: TypeGroup, ChatID: 12}
	assert.Equal(t, "group:12", group.RoomID())
}

func TestMessagePreview(t *testing.T) {
	assert.Equal(t, "hello", (&Message{Text: "hello"}).Preview())

	cases := map[string]string{
		"image": "Sent an image",
		"video": "Sent a video",
		"audio": "Sent an audio message",
		"file":  "Sent a file",
	}
	for kind, want := range cases {
		m := &Message{Attachments: AttachmentList{{Type: kind}}}
		assert.Equal(t, want, m.Preview())
	}

	// Text wins over attachments
	m := &Message{Text: "caption", Attachments: AttachmentList{{Type: "image"}}}
	assert.Equal(t, "caption", m.Preview())
}

func TestEnsureCreatorAdmin(t *testing.T) {
	g := &ChatGroup{
		CreatorID: 1,
		Members: []*GroupMember{
			{UserID: 2, Role: RoleMember},
		},
	}
	ensureCreatorAdmin(g)
	assert.Equal(t, int64(1), g.Members[0].UserID)
	assert.Equal(t, RoleAdmin, g.Members[0].Role)

	// Idempotent: a present creator is forced to admin without duplication
	g.Members[0].Role = RoleMember
	ensureCreatorAdmin(g)
	assert.Len(t, g.Members, 2)
	assert.Equal(t, RoleAdmin, g.Member(1).Role)
}

func TestGroupSettingsPatchApply(t *testing.T) {
	settings := DefaultGroupSettings()

	adminsOnly := PermAdminsOnly
	discoverable := true
	patch := &GroupSettingsPatch{
		SendMessages:   &adminsOnly,
		IsDiscoverable: &discoverable,
	}
	patch.Apply(&settings)

	assert.Equal(t, PermAdminsOnly, settings.SendMessages)
	assert.True(t, settings.IsDiscoverable)
	// Untouched fields survive
	assert.Equal(t, PermAdminsOnly, settings.AddMembers)
	assert.Equal(t, PermAdminsOnly, settings.RemoveMembers)

	// A nil patch is a no-op
	var empty *GroupSettingsPatch
	empty.Apply(&settings)
	assert.Equal(t, PermAdminsOnly, settings.SendMessages)
}

func TestValidChatType(t *testing.T) {
	assert.True(t, ValidChatType("private"))
	assert.True(t, ValidChatType("group"))
	assert.False(t, ValidChatType("broadcast"))
	assert.False(t, ValidChatType(""))
}

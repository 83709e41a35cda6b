package ws

import (
	"encoding/json"
	"testing"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(name string) *Client {
	return &Client{
		identity: models.Identity{ID: "id-" + name, Name: name},
		send:     make(chan []byte, 32),
	}
}

// drainFrames empties the client's send buffer and decodes every frame.
func drainFrames(t *testing.T, c *Client) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	for {
		select {
		case raw := <-c.send:
			frame := map[string]interface{}{}
			require.NoError(t, json.Unmarshal(raw, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func frameOfType(frames []map[string]interface{}, frameType string) map[string]interface{} {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i]["type"] == frameType {
			return frames[i]
		}
	}
	return nil
}

func TestJoinSwitchesRoom(t *testing.T) {
	registry := NewRegistry()
	c := newTestClient("alice")

	registry.Join(c, "r1")
	assert.Equal(t, "r1", c.room())
	require.Len(t, registry.Snapshot("r1"), 1)

	// a connection watches at most one room at a time
	registry.Join(c, "r2")
	assert.Equal(t, "r2", c.room())
	assert.Empty(t, registry.Snapshot("r1"))
	require.Len(t, registry.Snapshot("r2"), 1)
	assert.Equal(t, "alice", registry.Snapshot("r2")[0].Name)
}

func TestLeaveIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	c := newTestClient("alice")

	registry.Leave(c) // never joined, no-op

	registry.Join(c, "r1")
	registry.Leave(c)
	assert.Empty(t, c.room())
	assert.Empty(t, registry.Snapshot("r1"))

	registry.Leave(c) // second leave is safe
}

func TestBroadcastScope(t *testing.T) {
	registry := NewRegistry()
	c1 := newTestClient("alice")
	c2 := newTestClient("bob")
	c3 := newTestClient("carol")

	registry.Join(c1, "r1")
	registry.Join(c2, "r1")
	registry.Join(c3, "r2")
	drainFrames(t, c1)
	drainFrames(t, c2)
	drainFrames(t, c3)

	registry.Broadcast("r1", []byte(`{"type":"message"}`), nil)
	assert.Len(t, drainFrames(t, c1), 1)
	assert.Len(t, drainFrames(t, c2), 1)
	assert.Empty(t, drainFrames(t, c3), "other rooms must not receive the payload")

	registry.Broadcast("r1", []byte(`{"type":"message"}`), c2)
	assert.Len(t, drainFrames(t, c1), 1)
	assert.Empty(t, drainFrames(t, c2), "excluded connection must not receive the payload")

	// no watchers at all is a no-op
	registry.Broadcast("empty-room", []byte(`{"type":"message"}`), nil)
}

func TestPresenceBroadcasts(t *testing.T) {
	registry := NewRegistry()
	c1 := newTestClient("alice")
	c2 := newTestClient("bob")

	registry.Join(c1, "r1")
	drainFrames(t, c1)

	registry.Join(c2, "r1")
	presence := frameOfType(drainFrames(t, c1), "presence")
	require.NotNil(t, presence)
	online := presence["online"].([]interface{})
	require.Len(t, online, 2)
	// sorted by name
	assert.Equal(t, "alice", online[0].(map[string]interface{})["name"])
	assert.Equal(t, "bob", online[1].(map[string]interface{})["name"])

	registry.Leave(c2)
	presence = frameOfType(drainFrames(t, c1), "presence")
	require.NotNil(t, presence)
	online = presence["online"].([]interface{})
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].(map[string]interface{})["name"])
}

func TestSnapshotMatchesWatchers(t *testing.T) {
	registry := NewRegistry()
	c1 := newTestClient("bob")
	c2 := newTestClient("alice")

	registry.Join(c1, "r1")
	registry.Join(c2, "r1")

	snapshot := registry.Snapshot("r1")
	require.Len(t, snapshot, 2)
	assert.Equal(t, "alice", snapshot[0].Name)
	assert.Equal(t, "bob", snapshot[1].Name)

	assert.Empty(t, registry.Snapshot("unknown"))
}

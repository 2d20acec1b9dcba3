package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinder/storyboard/internal/model"
)

func newClient(userID string) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, 8)}
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.UserID)
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message for %s: %s", c.UserID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FansOutPerUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a1, a2, b := newClient("alice"), newClient("alice"), newClient("bob")
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)
	require.Eventually(t, func() bool { return hub.Connections("alice") == 2 }, time.Second, time.Millisecond)

	hub.BroadcastSnapshot("alice", "generation_succeeded", model.Snapshot{Phase: model.PhaseResult, StoryID: "s1"})

	for _, c := range []*Client{a1, a2} {
		msg := receive(t, c)
		assert.Equal(t, model.WSMessageTypeSnapshot, msg["type"])
		assert.Equal(t, "generation_succeeded", msg["event"])
		snap := msg["snapshot"].(map[string]interface{})
		assert.Equal(t, "result", snap["phase"])
		assert.Equal(t, "s1", snap["storyId"])
	}
	assertSilent(t, b)
}

func TestHub_ErrorAndProjectMessages(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newClient("alice")
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, time.Second, time.Millisecond)

	index := 3
	hub.BroadcastError("alice", "ANIMATION_FAILED", "gpu lost", &index)
	msg := receive(t, c)
	assert.Equal(t, model.WSMessageTypeError, msg["type"])
	errObj := msg["error"].(map[string]interface{})
	assert.Equal(t, "ANIMATION_FAILED", errObj["code"])
	assert.Equal(t, "gpu lost", errObj["message"])
	assert.Equal(t, float64(3), errObj["frameIndex"])

	hub.BroadcastError("alice", "GENERATION_FAILED", "busy", nil)
	msg = receive(t, c)
	_, hasIndex := msg["error"].(map[string]interface{})["frameIndex"]
	assert.False(t, hasIndex)

	hub.BroadcastProject("alice", "p1", model.ProjectStatusSaved)
	msg = receive(t, c)
	assert.Equal(t, model.WSMessageTypeProject, msg["type"])
	assert.Equal(t, "p1", msg["projectId"])
	assert.Equal(t, "saved", msg["status"])
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newClient("alice")
	hub.Register(c)
	hub.Unregister(c)
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, time.Second, time.Millisecond)

	_, open := <-c.Send
	assert.False(t, open, "send channel is closed on unregister")

	// Broadcasting to a user without connections is harmless
	hub.BroadcastSnapshot("alice", "reset_requested", model.Snapshot{})
	hub.Unregister(c)
}

func TestHub_AttachRegistersBeforeInitialSnapshot(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newClient("alice")
	hub.Attach(c, func() []byte {
		// A transition racing the new connection
		hub.BroadcastSnapshot("alice", "generation_succeeded", model.Snapshot{Phase: model.PhaseResult, Version: 2})
		data, err := json.Marshal(model.WSSnapshotMessage{
			Type:     model.WSMessageTypeSnapshot,
			Event:    "connected",
			Snapshot: model.Snapshot{Phase: model.PhaseLoading, Version: 1},
		})
		require.NoError(t, err)
		return data
	})

	events := []interface{}{receive(t, c)["event"], receive(t, c)["event"]}
	assert.ElementsMatch(t, []interface{}{"connected", "generation_succeeded"}, events)
	assertSilent(t, c)
}

func TestHub_AttachWithoutInitial(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newClient("alice")
	hub.Attach(c, nil)
	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, time.Second, time.Millisecond)
	assertSilent(t, c)
}

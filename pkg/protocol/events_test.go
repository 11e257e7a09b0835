package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientEvent(t *testing.T) {
	roomID := uuid.New()

	t.Run("join-room", func(t *testing.T) {
		raw := []byte(`{"type":"join-room","data":{"roomId":"` + roomID.String() + `"}}`)
		ev, err := DecodeClientEvent(raw)
		require.NoError(t, err)
		join, ok := ev.(*JoinRoom)
		require.True(t, ok)
		assert.Equal(t, roomID, join.RoomID)
	})

	t.Run("new-message", func(t *testing.T) {
		raw := []byte(`{"type":"new-message","data":{"roomId":"` + roomID.String() + `","message":"hello"}}`)
		ev, err := DecodeClientEvent(raw)
		require.NoError(t, err)
		msg := ev.(*NewMessage)
		assert.Equal(t, "hello", msg.Message)
	})

	t.Run("typing", func(t *testing.T) {
		raw := []byte(`{"type":"typing","data":{"roomId":"` + roomID.String() + `","isTyping":true}}`)
		ev, err := DecodeClientEvent(raw)
		require.NoError(t, err)
		assert.True(t, ev.(*Typing).IsTyping)
	})

	malformed := map[string]string{
		"not json":           `{"type":`,
		"unknown type":       `{"type":"shout","data":{}}`,
		"missing data":       `{"type":"join-room"}`,
		"missing room":       `{"type":"leave-room","data":{}}`,
		"bad room id":        `{"type":"join-room","data":{"roomId":"nope"}}`,
		"attachment w/o url": `{"type":"new-message","data":{"roomId":"` + roomID.String() + `","attachments":[{"name":"a.png"}]}}`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClientEvent([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestServerEventRoundTrip(t *testing.T) {
	roomID := uuid.New()
	msg := Message{
		ID:        "01J8Z5W5V2K1M3N4P5Q6R7S8T9",
		RoomID:    &roomID,
		AuthorID:  uuid.New(),
		Body:      "hello",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	raw, err := EncodeServerEvent(MessageReceived{Message: msg})
	require.NoError(t, err)

	// В message-received лежит сама запись сообщения
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventMessageReceived, env.Type)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &flat))
	assert.Equal(t, "hello", flat["body"])

	ev, err := DecodeServerEvent(raw)
	require.NoError(t, err)
	got, ok := ev.(*MessageReceived)
	require.True(t, ok)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Body, got.Body)
	assert.True(t, msg.CreatedAt.Equal(got.CreatedAt))
}

func TestTombstone(t *testing.T) {
	m := Message{ID: "x", Body: "secret", Attachments: []Attachment{{URL: "u"}}, Reactions: []ReactionGroup{{Emoji: "👍", Count: 1}}}
	ts := m.Tombstone()
	assert.True(t, ts.Deleted)
	assert.Empty(t, ts.Body)
	assert.Nil(t, ts.Attachments)
	assert.Nil(t, ts.Reactions)
	assert.Equal(t, "x", ts.ID)
	assert.Equal(t, "secret", m.Body)
}

package websocket

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/livechat/pkg/protocol"
)

func newTestHub(t *testing.T, mutate func(*Options)) *Hub {
	t.Helper()
	opts := DefaultOptions()
	opts.TypingTimeout = 50 * time.Millisecond
	if mutate != nil {
		mutate(&opts)
	}
	h := NewHub(opts)
	t.Cleanup(h.Stop)
	return h
}

func newTestClient(t *testing.T, h *Hub, userID uuid.UUID) *Client {
	t.Helper()
	c := NewClient(h, nil, userID)
	require.NoError(t, h.Register(c))
	return c
}

// drain забирает всё, что накопилось в очереди клиента
func drain(t *testing.T, c *Client) []protocol.ServerEvent {
	t.Helper()
	var out []protocol.ServerEvent
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			ev, err := protocol.DecodeServerEvent(raw)
			require.NoError(t, err)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func assertClosed(t *testing.T, c *Client) {
	t.Helper()
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("send channel was not closed")
		}
	}
}

func eventTypes(events []protocol.ServerEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventType()
	}
	return out
}

func TestJoinRoom(t *testing.T) {
	h := newTestHub(t, nil)
	room := uuid.New()
	alice := newTestClient(t, h, uuid.New())
	bob := newTestClient(t, h, uuid.New())

	require.True(t, h.JoinRoom(alice, room))
	assert.False(t, h.JoinRoom(alice, room))
	events := drain(t, alice)
	require.Len(t, events, 1)
	snapshot := events[0].(*protocol.RoomUsers)
	assert.Equal(t, []uuid.UUID{alice.UserID}, snapshot.UserIDs)

	require.True(t, h.JoinRoom(bob, room))
	events = drain(t, alice)
	require.Len(t, events, 1)
	joined := events[0].(*protocol.UserJoined)
	assert.Equal(t, bob.ID, joined.SocketID)
	assert.Equal(t, bob.UserID, joined.UserID)

	events = drain(t, bob)
	require.Len(t, events, 1)
	assert.Len(t, events[0].(*protocol.RoomUsers).UserIDs, 2)

	assert.True(t, h.IsOnlineInRoom(room, bob.UserID))
	assert.Len(t, h.GetOnlineUsers(), 2)
}

func TestPublishToRoomIncludesSender(t *testing.T) {
	h := newTestHub(t, nil)
	general, random := uuid.New(), uuid.New()
	alice := newTestClient(t, h, uuid.New())
	bob := newTestClient(t, h, uuid.New())
	carol := newTestClient(t, h, uuid.New())
	h.JoinRoom(alice, general)
	h.JoinRoom(bob, general)
	h.JoinRoom(carol, random)
	drain(t, alice)
	drain(t, bob)
	drain(t, carol)

	h.PublishToRoom(general, protocol.MessageReceived{Message: protocol.Message{ID: "m1", Body: "hello"}})

	for _, c := range []*Client{alice, bob} {
		events := drain(t, c)
		require.Len(t, events, 1)
		assert.Equal(t, "hello", events[0].(*protocol.MessageReceived).Body)
	}
	assert.Empty(t, drain(t, carol))
}

func TestLeaveRoom(t *testing.T) {
	h := newTestHub(t, nil)
	room := uuid.New()
	aliceID := uuid.New()
	alice := newTestClient(t, h, aliceID)
	bob1 := newTestClient(t, h, uuid.New())
	bob2 := NewClient(h, nil, bob1.UserID)
	require.NoError(t, h.Register(bob2))

	h.JoinRoom(alice, room)
	h.JoinRoom(bob1, room)
	h.JoinRoom(bob2, room)
	drain(t, alice)

	// У bob осталось второе соединение, поэтому user-left не уходит
	h.LeaveRoom(bob1, room)
	assert.Empty(t, drain(t, alice))
	assert.False(t, bob1.IsInRoom(room))

	h.LeaveRoom(bob2, room)
	events := drain(t, alice)
	require.Len(t, events, 1)
	left := events[0].(*protocol.UserLeft)
	assert.Equal(t, bob1.UserID, left.UserID)
	assert.False(t, h.IsOnlineInRoom(room, bob1.UserID))

	h.LeaveRoom(bob2, room)
	assert.Empty(t, drain(t, alice))
}

func TestRemoveUserDetachesEveryConnection(t *testing.T) {
	h := newTestHub(t, nil)
	room := uuid.New()
	alice := newTestClient(t, h, uuid.New())
	bobID := uuid.New()
	bob1 := newTestClient(t, h, bobID)
	bob2 := newTestClient(t, h, bobID)
	for _, c := range []*Client{alice, bob1, bob2} {
		h.JoinRoom(c, room)
	}
	for _, c := range []*Client{alice, bob1, bob2} {
		drain(t, c)
	}

	assert.Equal(t, 2, h.RemoveUser(room, bobID))
	assert.False(t, bob1.IsInRoom(room))
	assert.False(t, bob2.IsInRoom(room))
	assert.Equal(t, []uuid.UUID{alice.UserID}, h.GetRoomUsers(room))

	assert.Equal(t, []string{protocol.EventUserLeft}, eventTypes(drain(t, alice)))
	for _, c := range []*Client{bob1, bob2} {
		events := drain(t, c)
		require.Len(t, events, 1)
		assert.Equal(t, bobID, events[0].(*protocol.UserLeft).UserID)
	}

	h.PublishToRoom(room, protocol.MessageReceived{Message: protocol.Message{ID: "after"}})
	assert.Len(t, drain(t, alice), 1)
	assert.Empty(t, drain(t, bob1))
	assert.Empty(t, drain(t, bob2))

	assert.Zero(t, h.RemoveUser(room, bobID))
}

func TestTypingSkipsTypersOwnConnections(t *testing.T) {
	h := newTestHub(t, func(o *Options) { o.TypingTimeout = time.Minute })
	room := uuid.New()
	alice := newTestClient(t, h, uuid.New())
	bobID := uuid.New()
	bob1 := newTestClient(t, h, bobID)
	bob2 := newTestClient(t, h, bobID)
	for _, c := range []*Client{alice, bob1, bob2} {
		h.JoinRoom(c, room)
	}
	for _, c := range []*Client{alice, bob1, bob2} {
		drain(t, c)
	}

	h.Typing().Set(room, bobID, true)
	h.Typing().Set(room, bobID, false)

	events := drain(t, alice)
	require.Len(t, events, 2)
	assert.True(t, events[0].(*protocol.UserTyping).IsTyping)
	assert.False(t, events[1].(*protocol.UserTyping).IsTyping)
	assert.Empty(t, drain(t, bob1))
	assert.Empty(t, drain(t, bob2))
}

func TestDisconnectClearsPresenceAndTyping(t *testing.T) {
	h := newTestHub(t, func(o *Options) { o.TypingTimeout = time.Minute })
	room := uuid.New()
	alice := newTestClient(t, h, uuid.New())
	bob := newTestClient(t, h, uuid.New())
	h.JoinRoom(alice, room)
	h.JoinRoom(bob, room)

	h.Typing().Set(room, bob.UserID, true)
	drain(t, alice)

	h.Unregister(bob)
	h.Unregister(bob)

	events := drain(t, alice)
	assert.Equal(t, []string{protocol.EventUserTyping, protocol.EventUserLeft}, eventTypes(events))
	assert.False(t, events[0].(*protocol.UserTyping).IsTyping)
	assert.False(t, h.Typing().IsTyping(room, bob.UserID))
	assert.Equal(t, []uuid.UUID{alice.UserID}, h.GetRoomUsers(room))

	assertClosed(t, bob)
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	h := newTestHub(t, func(o *Options) { o.SendBuffer = 2 })
	room := uuid.New()
	slow := newTestClient(t, h, uuid.New())
	fast := newTestClient(t, h, uuid.New())
	h.JoinRoom(slow, room)
	h.JoinRoom(fast, room)
	drain(t, fast)

	for i := 0; i < 3; i++ {
		h.PublishToRoom(room, protocol.MessageReceived{Message: protocol.Message{ID: fmt.Sprint(i)}})
		drain(t, fast)
	}

	assert.Equal(t, []uuid.UUID{fast.UserID}, h.GetRoomUsers(room))
	assert.Len(t, h.GetOnlineUsers(), 1)
	assertClosed(t, slow)
}

func TestSweepEvictsStaleClients(t *testing.T) {
	now := time.Now()
	h := newTestHub(t, func(o *Options) { o.PongWait = time.Minute })
	h.now = func() time.Time { return now }

	stale := newTestClient(t, h, uuid.New())
	now = now.Add(2 * time.Minute)
	fresh := newTestClient(t, h, uuid.New())

	assert.Equal(t, 1, h.Sweep())
	assert.Equal(t, []uuid.UUID{fresh.UserID}, h.GetOnlineUsers())
	assertClosed(t, stale)
}

func TestStopRejectsNewClients(t *testing.T) {
	h := newTestHub(t, nil)
	c := newTestClient(t, h, uuid.New())
	h.Stop()

	assertClosed(t, c)
	assert.ErrorIs(t, h.Register(NewClient(h, nil, uuid.New())), ErrHubStopped)
}

func TestBroadcasterPreservesRoomOrder(t *testing.T) {
	h := newTestHub(t, func(o *Options) { o.SendBuffer = 1024 })
	b := NewBroadcaster(h)
	room := uuid.New()
	receivers := []*Client{newTestClient(t, h, uuid.New()), newTestClient(t, h, uuid.New())}
	for _, c := range receivers {
		h.JoinRoom(c, room)
	}
	for _, c := range receivers {
		drain(t, c)
	}

	var (
		mu        sync.Mutex
		persisted []string
		wg        sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := b.Room(room, func() (protocol.ServerEvent, error) {
				id := fmt.Sprintf("m%02d", i)
				mu.Lock()
				persisted = append(persisted, id)
				mu.Unlock()
				return protocol.MessageReceived{Message: protocol.Message{ID: id}}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, c := range receivers {
		events := drain(t, c)
		got := make([]string, len(events))
		for i, ev := range events {
			got[i] = ev.(*protocol.MessageReceived).ID
		}
		assert.Equal(t, persisted, got)
	}
	assert.Zero(t, b.locks.size())
}

func TestBroadcasterDeliversBeforeReturning(t *testing.T) {
	h := newTestHub(t, nil)
	b := NewBroadcaster(h)
	general, random := uuid.New(), uuid.New()
	both := newTestClient(t, h, uuid.New())
	onlyRandom := newTestClient(t, h, uuid.New())
	h.JoinRoom(both, general)
	h.JoinRoom(both, random)
	h.JoinRoom(onlyRandom, random)
	drain(t, both)
	drain(t, onlyRandom)

	send := func(room uuid.UUID, id string) {
		require.NoError(t, b.Room(room, func() (protocol.ServerEvent, error) {
			return protocol.MessageReceived{Message: protocol.Message{ID: id, Body: id}}, nil
		}))
	}
	send(general, "hello")
	send(random, "later")

	events := drain(t, both)
	require.Len(t, events, 2)
	assert.Equal(t, "hello", events[0].(*protocol.MessageReceived).Body)
	assert.Equal(t, "later", events[1].(*protocol.MessageReceived).Body)

	events = drain(t, onlyRandom)
	require.Len(t, events, 1)
	assert.Equal(t, "later", events[0].(*protocol.MessageReceived).Body)
}

func TestBroadcasterSkipsFailedPersist(t *testing.T) {
	h := newTestHub(t, nil)
	b := NewBroadcaster(h)
	room := uuid.New()
	c := newTestClient(t, h, uuid.New())
	h.JoinRoom(c, room)
	drain(t, c)

	boom := errors.New("store down")
	err := b.Room(room, func() (protocol.ServerEvent, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, drain(t, c))
}

func TestBroadcasterUsers(t *testing.T) {
	h := newTestHub(t, nil)
	b := NewBroadcaster(h)
	aliceID, bobID := uuid.New(), uuid.New()
	alice1 := newTestClient(t, h, aliceID)
	alice2 := newTestClient(t, h, aliceID)
	bob := newTestClient(t, h, bobID)
	other := newTestClient(t, h, uuid.New())

	err := b.Users(uuid.New(), []uuid.UUID{aliceID, bobID, aliceID}, func() (protocol.ServerEvent, error) {
		return protocol.MessageReceived{Message: protocol.Message{ID: "dm1"}}, nil
	})
	require.NoError(t, err)

	for _, c := range []*Client{alice1, alice2, bob} {
		assert.Len(t, drain(t, c), 1)
	}
	assert.Empty(t, drain(t, other))

	b.ToUser(bobID, protocol.NotificationCreated{Notification: protocol.Notification{Type: "dm"}})
	events := drain(t, bob)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventNotification, events[0].EventType())
}

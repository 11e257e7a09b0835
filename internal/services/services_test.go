package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/livechat/internal/config"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/idgen"
	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/protocol"
)

type delivery struct {
	key   uuid.UUID
	users []uuid.UUID
	event protocol.ServerEvent
}

// recordingFanout выполняет persist сразу и запоминает разосланные события
type recordingFanout struct {
	mu     sync.Mutex
	rooms  []delivery
	users  []delivery
	direct []delivery
}

func (f *recordingFanout) Room(roomID uuid.UUID, persist func() (protocol.ServerEvent, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, err := persist()
	if err != nil {
		return err
	}
	f.rooms = append(f.rooms, delivery{key: roomID, event: ev})
	return nil
}

func (f *recordingFanout) Users(key uuid.UUID, userIDs []uuid.UUID, persist func() (protocol.ServerEvent, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, err := persist()
	if err != nil {
		return err
	}
	f.users = append(f.users, delivery{key: key, users: userIDs, event: ev})
	return nil
}

func (f *recordingFanout) ToUser(userID uuid.UUID, ev protocol.ServerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, delivery{key: userID, event: ev})
}

func (f *recordingFanout) roomEvents() []protocol.ServerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.ServerEvent, len(f.rooms))
	for i, d := range f.rooms {
		out[i] = d.event
	}
	return out
}

type testEnv struct {
	db            *database.Database
	fanout        *recordingFanout
	rooms         *RoomService
	directs       *DirectService
	notifications *NotificationService
	chat          *ChatService

	alice, bob, carol, admin Actor
	general, secret          *models.Room
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{db: db, fanout: &recordingFanout{}}
	env.rooms = NewRoomService(db)
	env.directs = NewDirectService(db)
	env.notifications = NewNotificationService(db, env.fanout)
	env.chat = NewChatService(db, idgen.New(), env.fanout, env.rooms, env.directs, env.notifications, config.ChatConfig{
		TypingTimeout:   3 * time.Second,
		GroupWindow:     5 * time.Minute,
		MaxBodyLength:   200,
		HistoryPageSize: 50,
		MaxPageSize:     100,
	})

	mk := func(name string, admin bool) Actor {
		u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x", IsAdmin: admin}
		require.NoError(t, db.SaveUser(ctx, u))
		return Actor{ID: u.ID, IsAdmin: admin}
	}
	env.alice = mk("alice", false)
	env.bob = mk("bob", false)
	env.carol = mk("carol", false)
	env.admin = mk("root", true)

	env.general, err = env.rooms.CreateRoom(ctx, env.admin, CreateRoomInput{Name: "general"})
	require.NoError(t, err)
	env.secret, err = env.rooms.CreateRoom(ctx, env.admin, CreateRoomInput{Name: "secret", Visibility: models.VisibilityPrivate})
	require.NoError(t, err)
	require.NoError(t, env.rooms.AddMember(ctx, env.admin, env.secret.ID, env.alice.ID))
	return env
}

func (e *testEnv) send(t *testing.T, actor Actor, room *models.Room, body string) *protocol.Message {
	t.Helper()
	msg, err := e.chat.AppendMessage(context.Background(), actor, room.ID, NewMessageInput{Body: body})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) notificationsFor(t *testing.T, actor Actor) []protocol.Notification {
	t.Helper()
	list, err := e.notifications.List(context.Background(), actor, true, 0)
	require.NoError(t, err)
	return list
}

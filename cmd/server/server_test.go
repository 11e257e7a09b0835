package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/livechat/internal/config"
	"github.com/thereayou/livechat/internal/handlers/dto"
	"github.com/thereayou/livechat/pkg/protocol"
)

type testApp struct {
	t      *testing.T
	server *Server
	http   *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", AllowedOrigins: []string{"*"}},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			AutoMigrate: true,
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Chat: config.ChatConfig{
			TypingTimeout:   150 * time.Millisecond,
			GroupWindow:     5 * time.Minute,
			MaxBodyLength:   4000,
			HistoryPageSize: 50,
			MaxPageSize:     100,
			SendRate:        100,
			SendBurst:       100,
		},
		WebSocket: config.WebSocketConfig{
			WriteWait:      time.Second,
			PongWait:       5 * time.Second,
			PingPeriod:     4 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     64,
		},
	}

	s, err := NewServer(context.Background(), cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router)
	t.Cleanup(func() {
		s.Hub.Stop()
		ts.Close()
		_ = s.Close()
	})
	return &testApp{t: t, server: s, http: ts}
}

type session struct {
	ID    uuid.UUID
	Token string
}

func (a *testApp) register(name string, admin bool) session {
	a.t.Helper()
	var resp dto.AuthResponse
	status := a.do(http.MethodPost, "/auth/register", "", obj{
		"username": name,
		"email":    name + "@example.com",
		"password": "password123",
	}, &resp)
	require.Equal(a.t, http.StatusCreated, status)

	id := uuid.MustParse(resp.User.ID)
	if admin {
		ctx := context.Background()
		u, err := a.server.DB.GetUser(ctx, id)
		require.NoError(a.t, err)
		u.IsAdmin = true
		require.NoError(a.t, a.server.DB.UpdateUser(ctx, u))
	}
	return session{ID: id, Token: resp.Token}
}

type obj map[string]any

func (a *testApp) do(method, path, token string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.http.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	if eb, ok := out.(*errorBody); ok && resp.StatusCode >= 400 {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(eb))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *testApp) createRoom(admin session, name, visibility string) uuid.UUID {
	a.t.Helper()
	var room dto.RoomResponse
	status := a.do(http.MethodPost, "/api/v1/rooms", admin.Token, obj{"name": name, "visibility": visibility}, &room)
	require.Equal(a.t, http.StatusCreated, status)
	return room.ID
}

func (a *testApp) dial(s session) *websocket.Conn {
	a.t.Helper()
	url := "ws" + strings.TrimPrefix(a.http.URL, "http") + "/ws?token=" + s.Token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(a.t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	a.t.Cleanup(func() { conn.Close() })
	// Регистрация в hub происходит после ответа на upgrade
	require.Eventually(a.t, func() bool {
		for _, id := range a.server.Hub.GetOnlineUsers() {
			if id == s.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, ev protocol.ClientEvent) {
	t.Helper()
	raw, err := protocol.EncodeClientEvent(ev)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// readUntil пропускает события, пока не встретит match
func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.ServerEvent) bool) protocol.ServerEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		ev, err := protocol.DecodeServerEvent(raw)
		require.NoError(t, err)
		if match(ev) {
			return ev
		}
	}
}

func ofType(eventType string) func(protocol.ServerEvent) bool {
	return func(ev protocol.ServerEvent) bool { return ev.EventType() == eventType }
}

func TestRESTMessageLifecycle(t *testing.T) {
	app := newTestApp(t)
	admin := app.register("root", true)
	alice := app.register("alice", false)
	bob := app.register("bob", false)
	roomID := app.createRoom(admin, "general", "public")

	var msg protocol.Message
	status := app.do(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/messages", roomID), alice.Token,
		obj{"body": "hello @bob"}, &msg)
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, msg.ID, 26)
	assert.Equal(t, alice.ID, msg.AuthorID)

	var page struct {
		Messages []protocol.Message `json:"messages"`
	}
	status = app.do(http.MethodGet, fmt.Sprintf("/api/v1/rooms/%s/messages?limit=10", roomID), bob.Token, nil, &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hello @bob", page.Messages[0].Body)

	// Bob получил уведомление об упоминании
	var notes struct {
		Notifications []protocol.Notification `json:"notifications"`
		Unread        int64                   `json:"unread"`
	}
	status = app.do(http.MethodGet, "/api/v1/notifications?unread=true", bob.Token, nil, &notes)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, notes.Notifications, 1)
	assert.Equal(t, "mention", notes.Notifications[0].Type)
	assert.EqualValues(t, 1, notes.Unread)

	var eb errorBody
	status = app.do(http.MethodPatch, "/api/v1/messages/"+msg.ID, bob.Token, obj{"body": "hijack"}, &eb)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", eb.Error.Code)

	var edited protocol.Message
	status = app.do(http.MethodPatch, "/api/v1/messages/"+msg.ID, alice.Token, obj{"body": "hello all"}, &edited)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, edited.Edited)

	var reactions struct {
		Reactions []protocol.ReactionGroup `json:"reactions"`
	}
	status = app.do(http.MethodPost, "/api/v1/messages/"+msg.ID+"/reactions", bob.Token, obj{"emoji": "👍"}, &reactions)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, reactions.Reactions, 1)
	assert.Equal(t, 1, reactions.Reactions[0].Count)

	status = app.do(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/pins", roomID), bob.Token, obj{"message_id": msg.ID}, nil)
	require.Equal(t, http.StatusCreated, status)
	status = app.do(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/pins", roomID), bob.Token, obj{"message_id": msg.ID}, &eb)
	assert.Equal(t, http.StatusConflict, status)

	var found struct {
		Messages []protocol.Message `json:"messages"`
	}
	status = app.do(http.MethodGet, "/api/v1/search/messages?q=ALL", bob.Token, nil, &found)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, found.Messages, 1)

	status = app.do(http.MethodDelete, "/api/v1/messages/"+msg.ID, alice.Token, nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	var deleted protocol.Message
	status = app.do(http.MethodGet, "/api/v1/messages/"+msg.ID, bob.Token, nil, &deleted)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, deleted.Deleted)
	assert.Empty(t, deleted.Body)
}

func TestRESTErrors(t *testing.T) {
	app := newTestApp(t)
	alice := app.register("alice", false)

	var eb errorBody
	status := app.do(http.MethodGet, "/api/v1/rooms", "", nil, &eb)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", eb.Error.Code)

	status = app.do(http.MethodPost, "/api/v1/rooms", alice.Token, obj{"name": "mine"}, &eb)
	assert.Equal(t, http.StatusForbidden, status)

	status = app.do(http.MethodGet, "/api/v1/rooms/not-a-uuid/messages", alice.Token, nil, &eb)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", eb.Error.Code)

	status = app.do(http.MethodGet, "/api/v1/rooms/"+uuid.NewString()+"/messages", alice.Token, nil, &eb)
	assert.Equal(t, http.StatusNotFound, status)

	status = app.do(http.MethodPost, "/auth/logout", alice.Token, nil, nil)
	require.Equal(t, http.StatusNoContent, status)
	status = app.do(http.MethodGet, "/api/v1/users/me", alice.Token, nil, &eb)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDirectMessages(t *testing.T) {
	app := newTestApp(t)
	alice := app.register("alice", false)
	bob := app.register("bob", false)
	carol := app.register("carol", false)

	bobConn := app.dial(bob)

	var msg protocol.Message
	status := app.do(http.MethodPost, "/api/v1/dm/users/"+bob.ID.String()+"/messages", alice.Token, obj{"body": "hi bob"}, &msg)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, msg.DirectThreadID)

	ev := readUntil(t, bobConn, ofType(protocol.EventMessageReceived))
	assert.Equal(t, msg.ID, ev.(*protocol.MessageReceived).ID)

	var eb errorBody
	status = app.do(http.MethodGet, "/api/v1/dm/threads/"+msg.DirectThreadID.String()+"/messages", carol.Token, nil, &eb)
	assert.Equal(t, http.StatusForbidden, status)

	var threads struct {
		Threads []dto.ThreadResponse `json:"threads"`
	}
	status = app.do(http.MethodGet, "/api/v1/dm/threads", bob.Token, nil, &threads)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, threads.Threads, 1)
	assert.Equal(t, *msg.DirectThreadID, threads.Threads[0].ID)
}

func TestGatewayRoomFlow(t *testing.T) {
	app := newTestApp(t)
	admin := app.register("root", true)
	alice := app.register("alice", false)
	bob := app.register("bob", false)
	roomID := app.createRoom(admin, "general", "public")

	aliceConn := app.dial(alice)
	sendEvent(t, aliceConn, protocol.JoinRoom{RoomID: roomID})
	snap := readUntil(t, aliceConn, ofType(protocol.EventRoomUsers)).(*protocol.RoomUsers)
	assert.Equal(t, []uuid.UUID{alice.ID}, snap.UserIDs)

	bobConn := app.dial(bob)
	sendEvent(t, bobConn, protocol.JoinRoom{RoomID: roomID})
	readUntil(t, bobConn, ofType(protocol.EventRoomUsers))
	joined := readUntil(t, aliceConn, ofType(protocol.EventUserJoined)).(*protocol.UserJoined)
	assert.Equal(t, bob.ID, joined.UserID)

	sendEvent(t, aliceConn, protocol.NewMessage{RoomID: roomID, UserID: alice.ID, Message: "hi there"})
	got := readUntil(t, bobConn, ofType(protocol.EventMessageReceived)).(*protocol.MessageReceived)
	echo := readUntil(t, aliceConn, ofType(protocol.EventMessageReceived)).(*protocol.MessageReceived)
	assert.Equal(t, "hi there", got.Body)
	assert.Equal(t, got.ID, echo.ID)

	sendEvent(t, bobConn, protocol.Typing{RoomID: roomID, UserID: bob.ID, IsTyping: true})
	typing := readUntil(t, aliceConn, ofType(protocol.EventUserTyping)).(*protocol.UserTyping)
	assert.True(t, typing.IsTyping)
	// Без обновления набор снимается по таймеру сервера
	typing = readUntil(t, aliceConn, ofType(protocol.EventUserTyping)).(*protocol.UserTyping)
	assert.False(t, typing.IsTyping)
	assert.Equal(t, bob.ID, typing.UserID)

	require.NoError(t, bobConn.Close())
	left := readUntil(t, aliceConn, ofType(protocol.EventUserLeft)).(*protocol.UserLeft)
	assert.Equal(t, bob.ID, left.UserID)
}

func TestGatewayRejections(t *testing.T) {
	app := newTestApp(t)
	admin := app.register("root", true)
	alice := app.register("alice", false)
	public := app.createRoom(admin, "general", "public")
	private := app.createRoom(admin, "staff", "private")

	conn := app.dial(alice)

	sendEvent(t, conn, protocol.JoinRoom{RoomID: private})
	e := readUntil(t, conn, ofType(protocol.EventError)).(*protocol.Error)
	assert.Equal(t, "FORBIDDEN", e.Code)

	sendEvent(t, conn, protocol.JoinRoom{RoomID: uuid.New()})
	e = readUntil(t, conn, ofType(protocol.EventError)).(*protocol.Error)
	assert.Equal(t, "NOT_FOUND", e.Code)

	// Сообщение в комнату, куда клиент не входил
	sendEvent(t, conn, protocol.NewMessage{RoomID: public, Message: "early"})
	e = readUntil(t, conn, ofType(protocol.EventError)).(*protocol.Error)
	assert.Equal(t, "FORBIDDEN", e.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	e = readUntil(t, conn, ofType(protocol.EventError)).(*protocol.Error)
	assert.Equal(t, "VALIDATION", e.Code)

	// Соединение остаётся рабочим после ошибок
	sendEvent(t, conn, protocol.JoinRoom{RoomID: public})
	readUntil(t, conn, ofType(protocol.EventRoomUsers))

	sendEvent(t, conn, protocol.NewMessage{RoomID: public, Message: "   "})
	e = readUntil(t, conn, ofType(protocol.EventError)).(*protocol.Error)
	assert.Equal(t, "VALIDATION", e.Code)
}

func TestGatewayRemovedMemberStopsReceiving(t *testing.T) {
	app := newTestApp(t)
	admin := app.register("root", true)
	alice := app.register("alice", false)
	staff := app.createRoom(admin, "staff", "private")
	lobby := app.createRoom(admin, "lobby", "public")

	status := app.do(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/members", staff), admin.Token, obj{"user_id": alice.ID}, nil)
	require.Equal(t, http.StatusNoContent, status)

	conn := app.dial(alice)
	sendEvent(t, conn, protocol.JoinRoom{RoomID: staff})
	readUntil(t, conn, ofType(protocol.EventRoomUsers))

	status = app.do(http.MethodDelete, fmt.Sprintf("/api/v1/rooms/%s/members/%s", staff, alice.ID), admin.Token, nil, nil)
	require.Equal(t, http.StatusNoContent, status)
	left := readUntil(t, conn, ofType(protocol.EventUserLeft)).(*protocol.UserLeft)
	assert.Equal(t, alice.ID, left.UserID)
	assert.Equal(t, staff, left.RoomID)

	status = app.do(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/messages", staff), admin.Token, obj{"body": "members only"}, nil)
	require.Equal(t, http.StatusCreated, status)

	// Кадры идут по порядку: до снимка lobby сообщение staff прийти не должно
	noMessages := func(eventType string) func(protocol.ServerEvent) bool {
		return func(ev protocol.ServerEvent) bool {
			require.NotEqual(t, protocol.EventMessageReceived, ev.EventType())
			return ev.EventType() == eventType
		}
	}
	sendEvent(t, conn, protocol.JoinRoom{RoomID: staff})
	e := readUntil(t, conn, noMessages(protocol.EventError)).(*protocol.Error)
	assert.Equal(t, "FORBIDDEN", e.Code)

	sendEvent(t, conn, protocol.JoinRoom{RoomID: lobby})
	readUntil(t, conn, noMessages(protocol.EventRoomUsers))
}

func TestGatewayRequiresToken(t *testing.T) {
	app := newTestApp(t)
	url := "ws" + strings.TrimPrefix(app.http.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/healthz", "", nil, nil))
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/metrics", "", nil, nil))
}

// Package chatclient клиент чата: держит сокет шлюза, после обрыва
// переподключается, заново входит в комнаты и перечитывает историю, потому что
// сокет пропущенные события не хранит. Отправка идёт через REST.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/thereayou/livechat/pkg/protocol"
	"github.com/thereayou/livechat/pkg/reconcile"
)

var ErrNotConnected = errors.New("chatclient: not connected")

type Options struct {
	// BaseURL адрес сервера, например http://localhost:8080
	BaseURL string
	Token   string
	// UserID автор оптимистичных копий
	UserID uuid.UUID

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	HistoryLimit int
	GroupWindow  time.Duration
	EventBuffer  int

	// Logger по умолчанию молчит
	Logger *zerolog.Logger
}

func (o *Options) defaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 128
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

type Client struct {
	opts Options
	log  zerolog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	views map[uuid.UUID]*reconcile.View

	// gorilla допускает только одного писателя на соединение
	writeMu sync.Mutex

	events   chan protocol.ServerEvent
	localSeq atomic.Uint64
	sessions atomic.Int64
}

func New(opts Options) *Client {
	opts.defaults()
	return &Client{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "chatclient").Logger(),
		views:  make(map[uuid.UUID]*reconcile.View),
		events: make(chan protocol.ServerEvent, opts.EventBuffer),
	}
}

// Events все события сервера после применения к лентам. При переполнении
// буфера старые события отбрасываются, ленты от этого не страдают.
func (c *Client) Events() <-chan protocol.ServerEvent {
	return c.events
}

// Sessions сколько раз соединение было установлено
func (c *Client) Sessions() int64 {
	return c.sessions.Load()
}

func (c *Client) View(roomID uuid.UUID) *reconcile.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[roomID]
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run держит соединение до отмены ctx. Ошибка аутентификации завершает Run,
// остальные ошибки ведут к переподключению с экспоненциальной задержкой.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthenticated) {
			return err
		}
		if connected {
			backoff = c.opts.MinBackoff
		}
		wait := jitter(backoff)
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("connection lost")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

func jitter(d time.Duration) time.Duration {
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half+1))
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {c.opts.Token}}.Encode()
	return u.String(), nil
}

// session одна жизнь соединения: подключение, восстановление комнат, чтение
func (c *Client) session(ctx context.Context) (bool, error) {
	addr, err := c.wsURL()
	if err != nil {
		return false, err
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, &Error{Code: CodeUnauthenticated, Status: resp.StatusCode, Message: "token rejected"}
		}
		return false, transportError("dial failed", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.sessions.Add(1)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	if err := c.resync(ctx); err != nil {
		return true, err
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, transportError("read failed", err)
		}
		ev, err := protocol.DecodeServerEvent(raw)
		if err != nil {
			c.log.Debug().Err(err).Msg("skip malformed event")
			continue
		}
		c.dispatch(ev)
	}
}

// resync после (пере)подключения: join во все комнаты, затем свежая история.
// События между join и ответом истории снимаются дедупликацией по id.
func (c *Client) resync(ctx context.Context) error {
	c.mu.Lock()
	rooms := make([]uuid.UUID, 0, len(c.views))
	for id := range c.views {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	for _, roomID := range rooms {
		if err := c.write(protocol.JoinRoom{RoomID: roomID}); err != nil {
			return err
		}
		if err := c.refresh(ctx, roomID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, roomID uuid.UUID) error {
	page, err := c.History(ctx, roomID, "", c.opts.HistoryLimit)
	if err != nil {
		return err
	}
	if v := c.View(roomID); v != nil {
		v.Reset(page)
	}
	return nil
}

func roomOf(ev protocol.ServerEvent) *uuid.UUID {
	switch e := ev.(type) {
	case *protocol.MessageReceived:
		return e.RoomID
	case *protocol.MessageEdited:
		return e.RoomID
	case *protocol.MessageDeleted:
		return e.RoomID
	case *protocol.ReactionUpdated:
		return e.RoomID
	default:
		return nil
	}
}

func (c *Client) dispatch(ev protocol.ServerEvent) {
	if roomID := roomOf(ev); roomID != nil {
		if v := c.View(*roomID); v != nil {
			v.Apply(ev)
		}
	}
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}

func (c *Client) write(ev protocol.ClientEvent) error {
	raw, err := protocol.EncodeClientEvent(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return transportError("write failed", err)
	}
	return nil
}

// Join подписывает на комнату и загружает историю. Без соединения
// комната будет подключена при следующем resync.
func (c *Client) Join(ctx context.Context, roomID uuid.UUID) (*reconcile.View, error) {
	c.mu.Lock()
	v, ok := c.views[roomID]
	if !ok {
		v = reconcile.NewView(c.opts.GroupWindow)
		c.views[roomID] = v
	}
	c.mu.Unlock()

	if err := c.write(protocol.JoinRoom{RoomID: roomID}); err != nil && !errors.Is(err, ErrNotConnected) {
		return nil, err
	}
	if err := c.refresh(ctx, roomID); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) Leave(roomID uuid.UUID) error {
	c.mu.Lock()
	delete(c.views, roomID)
	c.mu.Unlock()

	err := c.write(protocol.LeaveRoom{RoomID: roomID})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Client) Typing(roomID uuid.UUID, isTyping bool) error {
	return c.write(protocol.Typing{RoomID: roomID, UserID: c.opts.UserID, IsTyping: isTyping})
}

// Send отправляет сообщение через REST. В ленте сразу появляется
// оптимистичная копия, при ошибке она остаётся с текстом и статусом failed.
func (c *Client) Send(ctx context.Context, roomID uuid.UUID, body string) (*protocol.Message, string, error) {
	localID := "local-" + strconv.FormatUint(c.localSeq.Add(1), 10)
	v := c.View(roomID)
	if v != nil {
		v.AddPending(localID, c.opts.UserID, body, time.Now().UTC())
	}

	var msg protocol.Message
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/messages", roomID), map[string]any{"body": body}, &msg)
	if err != nil {
		if v != nil {
			v.Fail(localID, err)
		}
		return nil, localID, err
	}
	if v != nil {
		v.Confirm(localID, msg)
	}
	return &msg, localID, nil
}

// checkAuthor отказывает заранее, если лента знает автора и это не мы.
// Сервер всё равно проверяет права сам.
func (c *Client) checkAuthor(roomID uuid.UUID, messageID string) error {
	v := c.View(roomID)
	if v == nil {
		return nil
	}
	if m, ok := v.Message(messageID); ok && m.AuthorID != c.opts.UserID {
		return &Error{Code: CodeForbidden, Message: "only the author can change a message"}
	}
	return nil
}

func (c *Client) Edit(ctx context.Context, roomID uuid.UUID, messageID, body string) (*protocol.Message, error) {
	if err := c.checkAuthor(roomID, messageID); err != nil {
		return nil, err
	}
	var msg protocol.Message
	if err := c.do(ctx, http.MethodPatch, "/api/v1/messages/"+url.PathEscape(messageID), map[string]any{"body": body}, &msg); err != nil {
		return nil, err
	}
	if v := c.View(roomID); v != nil {
		v.Apply(&protocol.MessageEdited{Message: msg})
	}
	return &msg, nil
}

func (c *Client) Delete(ctx context.Context, roomID uuid.UUID, messageID string) error {
	if err := c.checkAuthor(roomID, messageID); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/messages/"+url.PathEscape(messageID), nil, nil); err != nil {
		return err
	}
	if v := c.View(roomID); v != nil {
		if m, ok := v.Message(messageID); ok {
			v.Apply(&protocol.MessageDeleted{Message: m})
		}
	}
	return nil
}

// History страница сообщений комнаты, старые первыми
func (c *Client) History(ctx context.Context, roomID uuid.UUID, before string, limit int) ([]protocol.Message, error) {
	q := url.Values{}
	if before != "" {
		q.Set("before", before)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/api/v1/rooms/%s/messages", roomID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page struct {
		Messages []protocol.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Messages, nil
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.opts.BaseURL, "/")+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return transportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var er errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return remoteError(resp.StatusCode, er.Error.Code, er.Error.Message)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/pkg/protocol"
)

type typingKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

type typingEntry struct {
	gen     uint64
	expires time.Time
	timer   *time.Timer
}

// TypingCoordinator хранит, кто сейчас печатает. Таймер на каждую пару
// (комната, пользователь) принадлежит серверу: если клиент пропал и не прислал
// typing(false), состояние всё равно истечёт через timeout.
type TypingCoordinator struct {
	mu      sync.Mutex
	timeout time.Duration
	entries map[typingKey]*typingEntry
	gen     uint64
	stopped bool
	publish func(roomID uuid.UUID, ev protocol.ServerEvent)
	now     func() time.Time
}

func NewTypingCoordinator(timeout time.Duration, publish func(uuid.UUID, protocol.ServerEvent)) *TypingCoordinator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TypingCoordinator{
		timeout: timeout,
		entries: make(map[typingKey]*typingEntry),
		publish: publish,
		now:     time.Now,
	}
}

// Set обрабатывает typing от клиента. true ставит или продлевает состояние,
// false снимает его. Событие user-typing уходит только при смене состояния.
func (t *TypingCoordinator) Set(roomID, userID uuid.UUID, isTyping bool) {
	if !isTyping {
		t.Clear(roomID, userID)
		return
	}

	key := typingKey{roomID: roomID, userID: userID}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen

	entry, existed := t.entries[key]
	if existed {
		entry.timer.Stop()
	} else {
		entry = &typingEntry{}
		t.entries[key] = entry
	}
	entry.gen = gen
	entry.expires = t.now().Add(t.timeout)
	entry.timer = time.AfterFunc(t.timeout, func() { t.expire(key, gen) })
	t.mu.Unlock()

	if !existed {
		t.publish(roomID, protocol.UserTyping{RoomID: roomID, UserID: userID, IsTyping: true})
	}
}

// Clear снимает состояние и рассылает isTyping=false, если пользователь печатал
func (t *TypingCoordinator) Clear(roomID, userID uuid.UUID) {
	key := typingKey{roomID: roomID, userID: userID}
	t.mu.Lock()
	entry, ok := t.entries[key]
	if ok {
		entry.timer.Stop()
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if ok {
		t.publish(roomID, protocol.UserTyping{RoomID: roomID, UserID: userID, IsTyping: false})
	}
}

// expire срабатывает по таймеру. Поколение защищает от старого таймера,
// который успел выстрелить после продления.
func (t *TypingCoordinator) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if !ok || entry.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	t.publish(key.roomID, protocol.UserTyping{RoomID: key.roomID, UserID: key.userID, IsTyping: false})
}

func (t *TypingCoordinator) IsTyping(roomID, userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[typingKey{roomID: roomID, userID: userID}]
	return ok && t.now().Before(entry.expires)
}

// Typing возвращает пользователей, печатающих в комнате
func (t *TypingCoordinator) Typing(roomID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	now := t.now()
	var users []uuid.UUID
	for key, entry := range t.entries {
		if key.roomID == roomID && now.Before(entry.expires) {
			users = append(users, key.userID)
		}
	}
	t.mu.Unlock()

	sortIDs(users)
	return users
}

// Stop останавливает таймеры без рассылки
func (t *TypingCoordinator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
	}
}

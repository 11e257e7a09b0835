package websocket

import (
	"sync"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/pkg/protocol"
)

// keyedMutex выдаёт отдельный мьютекс на ключ и удаляет его, когда он никому не нужен
type keyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex[K comparable]() *keyedMutex[K] {
	return &keyedMutex[K]{locks: make(map[K]*refLock)}
}

func (k *keyedMutex[K]) Lock(key K) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex[K]) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Broadcaster связывает запись в хранилище с рассылкой. Блокировка на
// комнату держится и на время записи, и на время постановки события в очереди
// клиентов, поэтому все участники получают события комнаты в порядке записи.
// Разные комнаты друг друга не ждут.
type Broadcaster struct {
	hub   *Hub
	locks *keyedMutex[uuid.UUID]
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, locks: newKeyedMutex[uuid.UUID]()}
}

// Room выполняет persist и рассылает результат всем соединениям комнаты.
// При ошибке persist ничего не рассылается.
func (b *Broadcaster) Room(roomID uuid.UUID, persist func() (protocol.ServerEvent, error)) error {
	unlock := b.locks.Lock(roomID)
	defer unlock()

	ev, err := persist()
	if err != nil {
		return err
	}
	b.hub.PublishToRoom(roomID, ev)
	return nil
}

// Users то же для личной переписки: событие уходит всем соединениям участников
func (b *Broadcaster) Users(key uuid.UUID, userIDs []uuid.UUID, persist func() (protocol.ServerEvent, error)) error {
	unlock := b.locks.Lock(key)
	defer unlock()

	ev, err := persist()
	if err != nil {
		return err
	}
	b.hub.PublishToUsers(userIDs, ev)
	return nil
}

func (b *Broadcaster) ToUser(userID uuid.UUID, ev protocol.ServerEvent) {
	b.hub.PublishToUsers([]uuid.UUID{userID}, ev)
}

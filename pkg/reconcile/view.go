// Package reconcile сводит страницу истории из REST и живые события сокета
// в одну упорядоченную ленту комнаты. Id сообщений выдаёт сервер, они
// уникальны и сортируются по времени, поэтому эхо собственной отправки
// распознаётся по id.
package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/pkg/protocol"
)

type Status int

const (
	StatusConfirmed Status = iota
	StatusPending
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "confirmed"
	}
}

// Entry сообщение в ленте. У неподтверждённых отправок Message.ID пуст,
// а LocalID задан клиентом.
type Entry struct {
	Message protocol.Message
	Status  Status
	LocalID string
	Err     error
}

// Item строка для отрисовки. Grouped означает, что аватар и время не показываются.
type Item struct {
	Entry
	Grouped bool
}

// View лента одной комнаты или одного личного диалога
type View struct {
	mu        sync.RWMutex
	confirmed []protocol.Message // по возрастанию id
	index     map[string]int
	pending   []Entry
	window    time.Duration
}

func NewView(window time.Duration) *View {
	if window <= 0 {
		window = DefaultGroupWindow
	}
	return &View{index: make(map[string]int), window: window}
}

// Reset заменяет подтверждённые сообщения свежей страницей истории.
// Сообщения новее последнего id страницы пришли по сокету, пока страница
// была в пути, и остаются. Отправки без ответа сервера и неудачные
// отправки тоже сохраняются.
func (v *View) Reset(page []protocol.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var newest string
	for _, m := range page {
		if m.ID > newest {
			newest = m.ID
		}
	}
	var live []protocol.Message
	for _, m := range v.confirmed {
		if m.ID > newest {
			live = append(live, m)
		}
	}

	v.confirmed = make([]protocol.Message, 0, len(page)+len(live))
	v.index = make(map[string]int, len(page)+len(live))
	for _, m := range page {
		v.insertLocked(m)
	}
	for _, m := range live {
		v.insertLocked(m)
	}
}

// Apply применяет событие сервера. Возвращает true, если лента изменилась.
func (v *View) Apply(ev protocol.ServerEvent) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch e := ev.(type) {
	case *protocol.MessageReceived:
		return v.insertLocked(e.Message)
	case *protocol.MessageEdited:
		return v.replaceLocked(e.Message)
	case *protocol.MessageDeleted:
		return v.replaceLocked(e.Message.Tombstone())
	case *protocol.ReactionUpdated:
		i, ok := v.index[e.MessageID]
		if !ok || v.confirmed[i].Deleted {
			return false
		}
		v.confirmed[i].Reactions = e.Reactions
		return true
	default:
		return false
	}
}

// insertLocked вставляет сообщение по порядку id. Уже известный id ничего не меняет.
func (v *View) insertLocked(m protocol.Message) bool {
	if _, ok := v.index[m.ID]; ok {
		return false
	}
	if m.Deleted {
		m = m.Tombstone()
	}
	n := len(v.confirmed)
	if n == 0 || v.confirmed[n-1].ID < m.ID {
		v.confirmed = append(v.confirmed, m)
		v.index[m.ID] = n
		return true
	}

	pos := sort.Search(n, func(i int) bool { return v.confirmed[i].ID > m.ID })
	v.confirmed = append(v.confirmed, protocol.Message{})
	copy(v.confirmed[pos+1:], v.confirmed[pos:])
	v.confirmed[pos] = m
	for i := pos; i < len(v.confirmed); i++ {
		v.index[v.confirmed[i].ID] = i
	}
	return true
}

// replaceLocked правка или удаление на месте. Надгробие не оживает от правки.
func (v *View) replaceLocked(m protocol.Message) bool {
	i, ok := v.index[m.ID]
	if !ok {
		return false
	}
	if v.confirmed[i].Deleted && !m.Deleted {
		return false
	}
	v.confirmed[i] = m
	return true
}

// AddPending добавляет оптимистичную копию отправляемого сообщения
func (v *View) AddPending(localID string, author uuid.UUID, body string, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, Entry{
		Message: protocol.Message{AuthorID: author, Body: body, CreatedAt: at},
		Status:  StatusPending,
		LocalID: localID,
	})
}

// Confirm заменяет оптимистичную копию сообщением сервера. Если эхо из
// сокета пришло раньше ответа, сообщение уже в ленте и копия просто убирается.
func (v *View) Confirm(localID string, m protocol.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removePendingLocked(localID)
	v.insertLocked(m)
}

// Fail помечает отправку неудачной, текст черновика остаётся в ленте
func (v *View) Fail(localID string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.pending {
		if v.pending[i].LocalID == localID {
			v.pending[i].Status = StatusFailed
			v.pending[i].Err = err
			return
		}
	}
}

// Discard убирает неудачную отправку и возвращает её текст для повтора
func (v *View) Discard(localID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range v.pending {
		if e.LocalID == localID {
			v.removePendingLocked(localID)
			return e.Message.Body, true
		}
	}
	return "", false
}

func (v *View) removePendingLocked(localID string) {
	for i := range v.pending {
		if v.pending[i].LocalID == localID {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
	}
}

// Message подтверждённое сообщение по id
func (v *View) Message(id string) (protocol.Message, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	i, ok := v.index[id]
	if !ok {
		return protocol.Message{}, false
	}
	return v.confirmed[i], true
}

// LastID самый новый подтверждённый id или пустая строка
func (v *View) LastID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.confirmed) == 0 {
		return ""
	}
	return v.confirmed[len(v.confirmed)-1].ID
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.confirmed) + len(v.pending)
}

// Entries подтверждённые сообщения по порядку, затем отправки в порядке добавления
func (v *View) Entries() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Entry, 0, len(v.confirmed)+len(v.pending))
	for _, m := range v.confirmed {
		out = append(out, Entry{Message: m, Status: StatusConfirmed})
	}
	return append(out, v.pending...)
}

// Display лента с признаками группировки, пересчитывается на каждый вызов
func (v *View) Display() []Item {
	entries := v.Entries()
	msgs := make([]protocol.Message, len(entries))
	for i := range entries {
		msgs[i] = entries[i].Message
	}
	grouped := Group(msgs, v.window)

	items := make([]Item, len(entries))
	for i := range entries {
		items[i] = Item{Entry: entries[i], Grouped: grouped[i]}
	}
	return items
}

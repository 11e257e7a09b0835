package reconcile

import (
	"time"

	"github.com/thereayou/livechat/pkg/protocol"
)

// DefaultGroupWindow интервал, в пределах которого сообщения одного автора
// показываются под одним заголовком
const DefaultGroupWindow = 5 * time.Minute

// Group возвращает для каждого сообщения признак продолжения группы.
// Сообщение продолжает группу, если оно не первое, автор тот же, что у
// предыдущего, и прошло меньше window.
func Group(msgs []protocol.Message, window time.Duration) []bool {
	grouped := make([]bool, len(msgs))
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		if cur.AuthorID != prev.AuthorID {
			continue
		}
		delta := cur.CreatedAt.Sub(prev.CreatedAt)
		grouped[i] = delta >= 0 && delta < window
	}
	return grouped
}

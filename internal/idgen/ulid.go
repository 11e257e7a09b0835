package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator выдаёт id сообщений. Это ULID: строки сортируются в порядке
// выдачи, и каждый следующий id строго больше предыдущего, даже если часы
// идут назад.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    ulid.ULID
	now     func() time.Time
}

func New() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Observe поднимает нижнюю границу до id, выданного до старта процесса,
// обычно самого нового id в базе
func (g *Generator) Observe(id string) error {
	if id == "" {
		return nil
	}
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return fmt.Errorf("invalid ULID %q: %w", id, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if parsed.Compare(g.last) > 0 {
		g.last = parsed
	}
	return nil
}

func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	if lastMs := g.last.Time(); ms < lastMs {
		ms = lastMs
	}

	for {
		id, err := ulid.New(ms, g.entropy)
		if err == nil && id.Compare(g.last) > 0 {
			g.last = id
			return id.String()
		}
		// Переполнение энтропии в пределах миллисекунды, переходим к следующей
		ms++
	}
}

func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Time время создания, зашитое в id
func Time(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

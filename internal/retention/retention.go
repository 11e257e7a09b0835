// Package retention по расписанию cron удаляет прочитанные уведомления старше TTL.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/thereayou/livechat/internal/config"
	"github.com/thereayou/livechat/internal/logger"
)

const (
	defaultCron = "0 3 * * *"
	retryDelay  = 30 * time.Second
)

type Purger interface {
	PurgeRead(ctx context.Context, ttl time.Duration) (int64, error)
}

type Scheduler struct {
	cron   string
	ttl    time.Duration
	purger Purger
	log    zerolog.Logger
	now    func() time.Time
}

func New(cfg config.RetentionConfig, purger Purger) (*Scheduler, error) {
	cron := cfg.Cron
	if cron == "" {
		cron = defaultCron
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %q", cfg.Cron)
	}
	if cfg.ReadNotificationTTL <= 0 {
		return nil, fmt.Errorf("retention.read_notification_ttl must be positive")
	}
	return &Scheduler{
		cron:   cron,
		ttl:    cfg.ReadNotificationTTL,
		purger: purger,
		log:    logger.L().With().Str("component", "retention").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Next время следующего запуска после t
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cron, t, false)
}

func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.purger.PurgeRead(ctx, s.ttl)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("purged", n).Dur("ttl", s.ttl).Msg("read notifications purged")
	return n, nil
}

// Run ждёт очередного тика и чистит уведомления, пока ctx не отменён.
// Ошибка одного прогона не останавливает планировщик.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Str("cron", s.cron).Msg("retention scheduler started")
	for {
		wait := retryDelay
		next, err := s.Next(s.now())
		if err != nil {
			s.log.Error().Err(err).Str("cron", s.cron).Msg("failed to compute next tick")
		} else {
			wait = next.Sub(s.now())
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("retention scheduler stopping")
			return nil
		case <-timer.C:
		}
		if err != nil {
			continue
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("retention run failed")
		}
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/thereayou/livechat/internal/config"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/handlers"
	"github.com/thereayou/livechat/internal/idgen"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/retention"
	"github.com/thereayou/livechat/internal/services"
	ws "github.com/thereayou/livechat/internal/websocket"
	"github.com/thereayou/livechat/pkg/auth"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Config     *config.Config
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client // nil, если redis.url не задан
	JWTManager *auth.JWTManager
	Hub        *ws.Hub
	Retention  *retention.Scheduler // nil, если очистка выключена

	log zerolog.Logger
}

// NewServer собирает все зависимости. Redis не обязателен: без него черный
// список токенов хранится в памяти процесса.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.L()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	ids := idgen.New()
	latest, err := db.LatestMessageID(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read latest message id: %w", err)
	}
	if err := ids.Observe(latest); err != nil {
		_ = db.Close()
		return nil, err
	}

	var (
		rdb       *redis.Client
		blacklist auth.TokenBlacklist
	)
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis connect failed: %w", err)
		}
		blacklist = auth.NewRedisBlacklist(rdb)
	} else {
		log.Warn().Msg("redis is not configured, token blacklist is kept in memory")
		blacklist = auth.NewMemoryBlacklist()
	}

	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	hub := ws.NewHub(ws.OptionsFromConfig(cfg.WebSocket, cfg.Chat))
	fanout := ws.NewBroadcaster(hub)

	rooms := services.NewRoomService(db)
	directs := services.NewDirectService(db)
	notifications := services.NewNotificationService(db, fanout)
	chat := services.NewChatService(db, ids, fanout, rooms, directs, notifications, cfg.Chat)
	authSvc := services.NewAuthService(db, jwtMgr, blacklist)

	var sched *retention.Scheduler
	if cfg.Retention.Enabled {
		sched, err = retention.New(cfg.Retention, notifications)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	h := &Handlers{
		Auth:          handlers.NewAuthHandler(authSvc),
		User:          handlers.NewUserHandler(db),
		Room:          handlers.NewRoomHandler(rooms, hub),
		Message:       handlers.NewHTTPMessageHandler(chat),
		Direct:        handlers.NewDirectHandler(directs, chat),
		Notification:  handlers.NewNotificationHandler(notifications),
		WebSocket:     handlers.NewWebSocketHandler(hub, handlers.NewMessageHandler(db, hub, rooms, chat), cfg.Server.AllowedOrigins),
		RestAuth:      middlewareFor(jwtMgr, blacklist, db, false),
		WebSocketAuth: middlewareFor(jwtMgr, blacklist, db, true),
		DB:            db,
	}

	return &Server{
		Config:     cfg,
		Router:     NewRouter(cfg, log, h),
		DB:         db,
		Redis:      rdb,
		JWTManager: jwtMgr,
		Hub:        hub,
		Retention:  sched,
		log:        log,
	}, nil
}

// Run блокируется до отмены ctx или падения одного из компонентов
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.Config.Server.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Hub.Run(ctx)
		return nil
	})

	if s.Retention != nil {
		g.Go(func() error { return s.Retention.Run(ctx) })
	}

	g.Go(func() error {
		s.log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server run error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info().Msg("shutting down")

		// Сначала закрываем сокеты, иначе Shutdown будет ждать их вечно
		s.Hub.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Server) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	errs = append(errs, s.DB.Close())
	return errors.Join(errs...)
}

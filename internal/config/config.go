package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/thereayou/livechat/internal/logger"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Chat      ChatConfig
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Retention RetentionConfig
	Log       logger.Config
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver       string // postgres or sqlite
	DSN          string
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type ChatConfig struct {
	TypingTimeout   time.Duration `mapstructure:"typing_timeout"`
	GroupWindow     time.Duration `mapstructure:"group_window"`
	MaxBodyLength   int           `mapstructure:"max_body_length"`
	HistoryPageSize int           `mapstructure:"history_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	SendRate        float64       `mapstructure:"send_rate"`
	SendBurst       int           `mapstructure:"send_burst"`
}

type WebSocketConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type RetentionConfig struct {
	Enabled             bool
	Cron                string
	ReadNotificationTTL time.Duration `mapstructure:"read_notification_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("chat.typing_timeout", "3s")
	v.SetDefault("chat.group_window", "5m")
	v.SetDefault("chat.max_body_length", 4000)
	v.SetDefault("chat.history_page_size", 50)
	v.SetDefault("chat.max_page_size", 100)
	v.SetDefault("chat.send_rate", 5)
	v.SetDefault("chat.send_burst", 10)

	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.max_message_size", 512*1024)
	v.SetDefault("websocket.send_buffer", 256)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.cron", "0 3 * * *")
	v.SetDefault("retention.read_notification_ttl", "720h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load читает .env, затем config.yaml из configPath, затем переменные
// окружения (server.port -> SERVER_PORT). Отсутствие файла конфига не ошибка.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	// Привычные имена переменных для деплоя
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn (DATABASE_URL) is not set")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is not set")
	}
	if c.Chat.TypingTimeout <= 0 {
		return errors.New("chat.typing_timeout must be positive")
	}
	if c.Chat.MaxPageSize < c.Chat.HistoryPageSize {
		return errors.New("chat.max_page_size must be >= chat.history_page_size")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return errors.New("websocket.ping_period must be shorter than websocket.pong_wait")
	}
	return nil
}

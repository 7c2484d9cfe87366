package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Realtime     RealtimeConfig
	Ticket       TicketConfig
	Whatsapp     WhatsappConfig
	Worker       WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN runs the
// service on the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
// Admin* seed the bootstrap account on first start.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	AdminName             string
	AdminEmail            string
	AdminPassword         string
}

// NotificationConfig controls the ticket event export.
type NotificationConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// RealtimeConfig controls the websocket hub and bus backplane.
type RealtimeConfig struct {
	UseRedis           bool
	RedisChannel       string
	SessionBuffer      int
	PingIntervalSecond int
}

// TicketConfig holds ticket routing knobs.
type TicketConfig struct {
	ReopenWindowMinutes int
}

// WhatsappConfig configures the whatsmeow transport.
type WhatsappConfig struct {
	Enabled  bool
	StoreDSN string
	LogLevel string
}

// WorkerConfig configures background jobs.
type WorkerConfig struct {
	ReconnectSchedule string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	dsn := os.Getenv("POSTGRES_DSN")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            dsn,
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AdminName:             getEnv("ADMIN_NAME", "Admin"),
			AdminEmail:            os.Getenv("ADMIN_EMAIL"),
			AdminPassword:         os.Getenv("ADMIN_PASSWORD"),
		},
		Notification: NotificationConfig{
			KafkaBrokers: getEnvAsList("NOTIFY_KAFKA_BROKERS"),
			KafkaTopic:   getEnv("NOTIFY_KAFKA_TOPIC", "helpdesk.ticket-events"),
		},
		Realtime: RealtimeConfig{
			UseRedis:           getEnvAsBool("REALTIME_USE_REDIS", false),
			RedisChannel:       getEnv("REALTIME_REDIS_CHANNEL", "helpdesk:events"),
			SessionBuffer:      getEnvAsInt("REALTIME_SESSION_BUFFER", 256),
			PingIntervalSecond: getEnvAsInt("REALTIME_PING_INTERVAL_SECONDS", 25),
		},
		Ticket: TicketConfig{
			ReopenWindowMinutes: getEnvAsInt("TICKET_REOPEN_WINDOW_MINUTES", 0),
		},
		Whatsapp: WhatsappConfig{
			Enabled:  getEnvAsBool("WHATSAPP_ENABLED", false),
			StoreDSN: getEnv("WHATSAPP_STORE_DSN", dsn),
			LogLevel: getEnv("WHATSAPP_LOG_LEVEL", "WARN"),
		},
		Worker: WorkerConfig{
			ReconnectSchedule: getEnv("WORKER_RECONNECT_SCHEDULE", "@every 1m"),
		},
	}

	if cfg.Whatsapp.Enabled && cfg.Whatsapp.StoreDSN == "" {
		return nil, fmt.Errorf("WHATSAPP_ENABLED requires WHATSAPP_STORE_DSN or POSTGRES_DSN")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the JWT lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// PingInterval returns the websocket keepalive period.
func (r RealtimeConfig) PingInterval() time.Duration {
	if r.PingIntervalSecond <= 0 {
		return 25 * time.Second
	}
	return time.Duration(r.PingIntervalSecond) * time.Second
}

// ReopenWindow returns zero when reopening recent tickets is disabled.
func (t TicketConfig) ReopenWindow() time.Duration {
	if t.ReopenWindowMinutes <= 0 {
		return 0
	}
	return time.Duration(t.ReopenWindowMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

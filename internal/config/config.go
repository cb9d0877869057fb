package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyPort                   = "port"
	KeyDatabaseURL            = "db_dsn"
	KeyLogLevel               = "log_level"
	KeyLogFormat              = "log_format"
	KeyRateLimitPerMinute     = "rate_limit_per_min"
	KeyRateLimitBurst         = "rate_limit_burst"
	KeyUserRateLimitPerMinute = "user_rate_limit_per_min"
	KeyUserRateLimitBurst     = "user_rate_limit_burst"
	KeyRealtimeQueueSize      = "realtime_queue_size"
	KeyRealtimeRequireAuth    = "realtime_require_auth"
	KeyRelayDriver            = "relay_driver"
	KeyRelayChannel           = "relay_channel"
	KeyRedisAddr              = "redis_addr"
	KeyRedisPassword          = "redis_password"
	KeyRedisDB                = "redis_db"
	KeyNATSURL                = "nats_url"
	KeyMigrationsDir          = "migrations_dir"
	KeySessionTTLHours        = "session_ttl_hours"
	KeyShutdownTimeoutSeconds = "shutdown_timeout_seconds"
	KeyBootstrapEmail         = "bootstrap_email"
	KeyBootstrapPassword      = "bootstrap_password"
)

const (
	RelayNone  = "none"
	RelayRedis = "redis"
	RelayNATS  = "nats"
)

type Config struct {
	Port                   string
	DatabaseURL            string
	LogLevel               string
	LogFormat              string
	RateLimitPerMinute     int
	RateLimitBurst         int
	UserRateLimitPerMinute int
	UserRateLimitBurst     int
	RealtimeQueueSize      int
	RealtimeRequireAuth    bool
	RelayDriver            string
	RelayChannel           string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	NATSURL                string
	MigrationsDir          string
	SessionTTL             time.Duration
	ShutdownTimeout        time.Duration
	BootstrapEmail         string
	BootstrapPassword      string
}

// SetDefaults registers every key with its default and turns on environment
// lookup, so PORT, DB_DSN and friends override config-file values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyRateLimitPerMinute, 120)
	v.SetDefault(KeyRateLimitBurst, 30)
	v.SetDefault(KeyUserRateLimitPerMinute, 600)
	v.SetDefault(KeyUserRateLimitBurst, 120)
	v.SetDefault(KeyRealtimeQueueSize, 64)
	v.SetDefault(KeyRealtimeRequireAuth, false)
	v.SetDefault(KeyRelayDriver, RelayNone)
	v.SetDefault(KeyRelayChannel, "hkms.events")
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyNATSURL, "nats://127.0.0.1:4222")
	v.SetDefault(KeyMigrationsDir, "migrations")
	v.SetDefault(KeySessionTTLHours, 12)
	v.SetDefault(KeyShutdownTimeoutSeconds, 10)
	v.SetDefault(KeyBootstrapEmail, "")
	v.SetDefault(KeyBootstrapPassword, "")
	v.AutomaticEnv()
}

func Load(v *viper.Viper) Config {
	return Config{
		Port:                   v.GetString(KeyPort),
		DatabaseURL:            v.GetString(KeyDatabaseURL),
		LogLevel:               v.GetString(KeyLogLevel),
		LogFormat:              v.GetString(KeyLogFormat),
		RateLimitPerMinute:     v.GetInt(KeyRateLimitPerMinute),
		RateLimitBurst:         v.GetInt(KeyRateLimitBurst),
		UserRateLimitPerMinute: v.GetInt(KeyUserRateLimitPerMinute),
		UserRateLimitBurst:     v.GetInt(KeyUserRateLimitBurst),
		RealtimeQueueSize:      v.GetInt(KeyRealtimeQueueSize),
		RealtimeRequireAuth:    v.GetBool(KeyRealtimeRequireAuth),
		RelayDriver:            strings.ToLower(strings.TrimSpace(v.GetString(KeyRelayDriver))),
		RelayChannel:           v.GetString(KeyRelayChannel),
		RedisAddr:              v.GetString(KeyRedisAddr),
		RedisPassword:          v.GetString(KeyRedisPassword),
		RedisDB:                v.GetInt(KeyRedisDB),
		NATSURL:                v.GetString(KeyNATSURL),
		MigrationsDir:          v.GetString(KeyMigrationsDir),
		SessionTTL:             readDurationHours(v, KeySessionTTLHours),
		ShutdownTimeout:        readDurationSeconds(v, KeyShutdownTimeoutSeconds),
		BootstrapEmail:         v.GetString(KeyBootstrapEmail),
		BootstrapPassword:      v.GetString(KeyBootstrapPassword),
	}
}

func readDurationSeconds(v *viper.Viper, key string) time.Duration {
	value := v.GetInt(key)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationHours(v *viper.Viper, key string) time.Duration {
	value := v.GetInt(key)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Hour
}

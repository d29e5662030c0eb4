package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string // control API bind address
	LogDir      string // logs directory
	DatabaseURL string // empty means in-memory store (dev / tests)

	CheckInterval      time.Duration // overdue-check task cadence
	DefaultJobInterval time.Duration // fallback expected interval when none is configured or inferable
	DefaultTolerance   time.Duration // fallback grace period
	Escalation         time.Duration // global re-notify interval, 0 = off
	NotifyOnRecovery   bool

	SendTimeout     time.Duration // per-channel send timeout
	MaxSendAttempts int           // within-tick retry ceiling per channel
	SendBackoff     time.Duration // initial retry backoff

	ChannelFile string // YAML channel declarations
}

func FromEnv() Config {
	cfg := Config{
		Addr:               envStr("ADDR", "127.0.0.1:8091"),
		LogDir:             envStr("LOG_DIR", "logs"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		CheckInterval:      envDur("CHECK_INTERVAL", 5*time.Minute),
		DefaultJobInterval: envDur("CHECK_DEFAULT_INTERVAL", 24*time.Hour),
		DefaultTolerance:   envDur("CHECK_DEFAULT_TOLERANCE", time.Hour),
		Escalation:         envDur("NOTIFY_ESCALATION", 0),
		NotifyOnRecovery:   envBool("NOTIFY_ON_RECOVERY", true),
		SendTimeout:        envDur("SEND_TIMEOUT", 15*time.Second),
		MaxSendAttempts:    envInt("SEND_ATTEMPTS", 3),
		SendBackoff:        envDur("SEND_BACKOFF", 500*time.Millisecond),
		ChannelFile:        envStr("CHANNEL_FILE", "channels.yaml"),
	}
	return cfg
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDur accepts Go duration strings ("5m", "24h").
func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}

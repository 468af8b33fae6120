package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	BackendREST = "rest"
	BackendDB   = "db"
)

// Config is built once at startup and handed to every component that needs
// it. Nothing reads the environment after Load returns.
type Config struct {
	HTTPPort        string
	GRPCPort        string
	Username        string
	Password        string
	Backend         string
	APIBase         string
	APIKey          string
	HTTPTimeout     time.Duration
	RefreshInterval time.Duration
	DSN             string
	PrefsPath       string
	LogLevel        string
	AuditFilter     string
	KafkaBrokers    []string
	KafkaTopic      string
	NATSURL         string
}

func LoadConfig() Config {
	timeout, err := time.ParseDuration(getEnv("DISPATCH_HTTP_TIMEOUT", "0s"))
	if err != nil {
		timeout = 0
	}
	refresh, err := time.ParseDuration(getEnv("DISPATCH_REFRESH_INTERVAL", "0s"))
	if err != nil || refresh < 0 {
		refresh = 0
	}
	return Config{
		HTTPPort:        getEnv("APP_PORT", "9000"),
		GRPCPort:        getEnv("APP_GRPC_PORT", "9001"),
		Username:        getEnv("APP_USER", "admin"),
		Password:        getEnv("APP_PASS", "secret"),
		Backend:         getEnv("DISPATCH_BACKEND", BackendREST),
		APIBase:         strings.TrimRight(getEnv("DISPATCH_API_BASE", "http://127.0.0.1:8000"), "/"),
		APIKey:          getEnv("DISPATCH_API_KEY", "devkey"),
		HTTPTimeout:     timeout,
		RefreshInterval: refresh,
		DSN:             getEnv("APP_DSN", "host=localhost user=postgres password=postgres dbname=dispatch sslmode=disable"),
		PrefsPath:       getEnv("DISPATCH_PREFS_PATH", "./dispatch_prefs.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AuditFilter:     getEnv("APP_FILTER", ""),
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "dispatch-audit"),
		NATSURL:         getEnv("NATS_URL", ""),
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendREST:
		if c.APIBase == "" {
			return fmt.Errorf("DISPATCH_API_BASE is required for the %s backend", c.Backend)
		}
	case BackendDB:
		if c.DSN == "" {
			return fmt.Errorf("APP_DSN is required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendREST, BackendDB)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

func (c Config) GRPCAddr() string {
	return fmt.Sprintf(":%s", c.GRPCPort)
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type AuthConfig struct {
	BcryptCost      int
	MinPasswordLen  int
	TOTPIssuer      string
	DeviceTrustTTL  time.Duration
	TimingBaseDelay time.Duration
	TimingJitter    time.Duration
}

type RateLimitConfig struct {
	MaxFailures int
	Window      time.Duration
	// FloodRPM caps raw requests per minute per client in front of the
	// application throttle.
	FloodRPM int
}

type SessionConfig struct {
	CookieName    string
	DeviceCookie  string
	InactivityTTL time.Duration
	AbsoluteTTL   time.Duration
	CookieSecure  bool
	SweepInterval time.Duration
}

type AdminConfig struct {
	Username string
	Password string
}

// Load reads configuration from the environment, consulting a .env file when
// present. Missing values fall back to development defaults; only the
// database URL is required.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},
		Auth: AuthConfig{
			BcryptCost:      getEnvAsInt("BCRYPT_COST", 12),
			MinPasswordLen:  getEnvAsInt("MIN_PASSWORD_LEN", 14),
			TOTPIssuer:      getEnv("TOTP_ISSUER", "ClubMgr"),
			DeviceTrustTTL:  getEnvAsDuration("DEVICE_TRUST_TTL", 30*24*time.Hour),
			TimingBaseDelay: getEnvAsDuration("TIMING_BASE_DELAY", 100*time.Millisecond),
			TimingJitter:    getEnvAsDuration("TIMING_JITTER", 100*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			MaxFailures: getEnvAsInt("RATE_LIMIT_MAX_FAILURES", 10),
			Window:      getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			FloodRPM:    getEnvAsInt("RATE_LIMIT_FLOOD_RPM", 120),
		},
		Session: SessionConfig{
			CookieName:    getEnv("SESSION_COOKIE_NAME", "clubmgr_session"),
			DeviceCookie:  getEnv("DEVICE_COOKIE_NAME", "_2fa_device"),
			InactivityTTL: getEnvAsDuration("SESSION_INACTIVITY_TTL", 30*time.Minute),
			AbsoluteTTL:   getEnvAsDuration("SESSION_ABSOLUTE_TTL", time.Hour),
			CookieSecure:  getEnvAsBool("SESSION_COOKIE_SECURE", false),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// Addr returns the host:port string for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("invalid integer in environment, using fallback", "key", key, "value", value)
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		slog.Warn("invalid boolean in environment, using fallback", "key", key, "value", value)
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("invalid duration in environment, using fallback", "key", key, "value", value)
	}
	return fallback
}

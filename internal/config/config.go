package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment leaves a knob unset.
const (
	defaultListenAddr    = ":8080"
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultRememberMeTTL = 30 * 24 * time.Hour
	defaultRateBurst     = 20
	defaultRatePerSec    = 10
)

// PasswordPolicy controls the strength rules enforced on new passwords.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPasswordPolicy matches the policy seeded for the HR deployment.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// Config carries everything the binaries need from the environment.
type Config struct {
	Environment string
	ListenAddr  string
	PostgresDSN string

	JWTSecret     string
	TokenIssuer   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration

	PasswordPolicy PasswordPolicy

	RateBurst  int
	RatePerSec int
}

// Load reads .env (if present) and the PEOPLEOPS_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment:    envOr("PEOPLEOPS_ENV", "development"),
		ListenAddr:     envOr("PEOPLEOPS_LISTEN_ADDR", defaultListenAddr),
		PostgresDSN:    os.Getenv("PEOPLEOPS_PG_DSN"),
		JWTSecret:      os.Getenv("PEOPLEOPS_JWT_SECRET"),
		TokenIssuer:    envOr("PEOPLEOPS_TOKEN_ISSUER", "peopleops"),
		AccessTTL:      envDuration("PEOPLEOPS_ACCESS_TTL", defaultAccessTTL),
		RefreshTTL:     envDuration("PEOPLEOPS_REFRESH_TTL", defaultRefreshTTL),
		RememberMeTTL:  envDuration("PEOPLEOPS_REMEMBER_ME_TTL", defaultRememberMeTTL),
		PasswordPolicy: DefaultPasswordPolicy(),
		RateBurst:      envInt("PEOPLEOPS_RATE_BURST", defaultRateBurst),
		RatePerSec:     envInt("PEOPLEOPS_RATE_PER_SEC", defaultRatePerSec),
	}

	if n := envInt("PEOPLEOPS_PASSWORD_MIN_LENGTH", 0); n > 0 {
		cfg.PasswordPolicy.MinLength = n
	}
	cfg.PasswordPolicy.RequireUpper = envBool("PEOPLEOPS_PASSWORD_REQUIRE_UPPER", cfg.PasswordPolicy.RequireUpper)
	cfg.PasswordPolicy.RequireLower = envBool("PEOPLEOPS_PASSWORD_REQUIRE_LOWER", cfg.PasswordPolicy.RequireLower)
	cfg.PasswordPolicy.RequireDigit = envBool("PEOPLEOPS_PASSWORD_REQUIRE_DIGIT", cfg.PasswordPolicy.RequireDigit)
	cfg.PasswordPolicy.RequireSpecial = envBool("PEOPLEOPS_PASSWORD_REQUIRE_SPECIAL", cfg.PasswordPolicy.RequireSpecial)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: PEOPLEOPS_JWT_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

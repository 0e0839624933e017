// Package config holds the process-wide settings of the attendance service.
// A Config is built once at startup and handed to the components that need
// it; nothing in the service mutates it afterwards.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMatchThreshold = 0.6
	DefaultNonceLength    = 16
	DefaultCheckInScore   = 20
	DefaultTokenTTL       = 24 * time.Hour
	DefaultBcryptCost     = 12

	// minimum secret length accepted for ATTENDANCE_CIPHER_KEY after base64 decoding
	minCipherKeyLen = 32
)

var (
	ErrMissingCipherKey = errors.New("ATTENDANCE_CIPHER_KEY is required")
	ErrShortCipherKey   = fmt.Errorf("ATTENDANCE_CIPHER_KEY must decode to at least %d bytes", minCipherKeyLen)
	ErrMissingJWTSecret = errors.New("JWT_SECRET is required")
)

type Config struct {
	HTTPAddr    string
	StoreDriver string // postgres | memory

	CipherKey      []byte
	MatchThreshold float64
	NonceLength    int
	CheckInScore   int

	JWTSecret  []byte
	JWTIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	CORSOrigins []string

	// LogAdmissionCodes logs invitation codes in full; local use only
	LogAdmissionCodes bool
}

// ConfigFromEnv reads the service config from env vars. Secrets are
// mandatory; everything else falls back to a default.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       envOr("HTTP_ADDR", "0.0.0.0:8431"),
		StoreDriver:    envOr("STORE_DRIVER", "postgres"),
		MatchThreshold: DefaultMatchThreshold,
		NonceLength:    DefaultNonceLength,
		CheckInScore:   DefaultCheckInScore,
		JWTIssuer:      envOr("JWT_ISSUER", "service-attendance-go"),
		TokenTTL:       DefaultTokenTTL,
		BcryptCost:     DefaultBcryptCost,
		CORSOrigins:    splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
	}

	raw := os.Getenv("ATTENDANCE_CIPHER_KEY")
	if raw == "" {
		return Config{}, ErrMissingCipherKey
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Config{}, fmt.Errorf("ATTENDANCE_CIPHER_KEY: %w", err)
	}
	if len(key) < minCipherKeyLen {
		return Config{}, ErrShortCipherKey
	}
	cfg.CipherKey = key

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return Config{}, ErrMissingJWTSecret
	}
	cfg.JWTSecret = []byte(secret)

	if v := os.Getenv("MATCH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return Config{}, fmt.Errorf("MATCH_THRESHOLD %q: must be a positive number", v)
		}
		cfg.MatchThreshold = f
	}
	if cfg.NonceLength, err = intFromEnv("NONCE_LENGTH", cfg.NonceLength); err != nil {
		return Config{}, err
	}
	if cfg.CheckInScore, err = intFromEnv("CHECKIN_SCORE", cfg.CheckInScore); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intFromEnv("BCRYPT_COST", cfg.BcryptCost); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("JWT_TTL %q: must be a positive duration", v)
		}
		cfg.TokenTTL = d
	}
	if v := os.Getenv("LOG_ADMISSION_CODES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("LOG_ADMISSION_CODES %q: must be a boolean", v)
		}
		cfg.LogAdmissionCodes = b
	}
	switch cfg.StoreDriver {
	case "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER %q: want postgres or memory", cfg.StoreDriver)
	}
	return cfg, nil
}

// String never prints key material.
func (c Config) String() string {
	return fmt.Sprintf("addr=%s store=%s threshold=%g nonce_len=%d checkin_score=%d jwt_issuer=%s jwt_ttl=%s cipher_key=[redacted] jwt_secret=[redacted]",
		c.HTTPAddr, c.StoreDriver, c.MatchThreshold, c.NonceLength, c.CheckInScore, c.JWTIssuer, c.TokenTTL)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s %q: must be a positive integer", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

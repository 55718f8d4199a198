package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/password"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AppConfig struct {
	Port                  string
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	IdleTimeout           time.Duration
	CORSOrigins           []string
	AuthRateLimit         int
	DiscloseConflictField bool
}

type DbConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
}

type JWTConfig struct {
	Secret        string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	JWTIssuer     string
	JWTAudience   string
	JWTAlg        string
	JWTKID        string
}

type CookieConfig struct {
	CookieDomain   string
	CookieSecure   bool
	CookieSamesite string
}

type HashConfig struct {
	Cost int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Revocation backends.
const (
	RevocationNone     = "none"
	RevocationMemory   = "memory"
	RevocationRedis    = "redis"
	RevocationPostgres = "postgres"
)

type RevocationConfig struct {
	Backend string
}

type Config struct {
	AppConfig        *AppConfig
	DbConfig         *DbConfig
	JWTConfig        *JWTConfig
	CookieConfig     *CookieConfig
	HashConfig       *HashConfig
	RedisConfig      *RedisConfig
	RevocationConfig *RevocationConfig
}

// LoadConfig reads the .env file at path, if any, and parses the process
// environment. A missing .env file is not an error; variables may come from
// the environment directly.
func LoadConfig(logger *zap.Logger, path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		logger.Warn("no .env file loaded", zap.String("path", path), zap.Error(err))
	}
	return Parse(os.Getenv)
}

// Parse builds a Config from getenv. Errors for missing or invalid signing
// material are autherr ConfigurationFatal values.
func Parse(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	/** db config */
	dbConfig := &DbConfig{
		DSN:             e.str("POSTGRES_DSN", ""),
		MaxOpenConns:    e.integer("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    e.integer("DB_MAX_IDLE_CONNS", 5),
		MaxConnLifetime: e.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}

	/** app config */
	appConfig := &AppConfig{
		Port:                  e.str("APP_PORT", "8080"),
		ReadTimeout:           e.duration("APP_READ_TIMEOUT", 5*time.Second),
		WriteTimeout:          e.duration("APP_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:           e.duration("APP_IDLE_TIMEOUT", 60*time.Second),
		CORSOrigins:           e.list("APP_CORS_ORIGINS"),
		AuthRateLimit:         e.integer("APP_AUTH_RATE_LIMIT", 10),
		DiscloseConflictField: e.boolean("APP_DISCLOSE_CONFLICT_FIELD", true),
	}

	/** jwt config */
	jwtConfig := &JWTConfig{
		Secret:        e.str("JWT_SECRET", ""),
		RefreshSecret: e.str("JWT_REFRESH_SECRET", ""),
		AccessTTL:     e.duration("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    e.duration("REFRESH_TTL", 7*24*time.Hour),
		JWTIssuer:     e.str("JWT_ISSUER", "warden"),
		JWTAudience:   e.str("JWT_AUDIENCE", "warden-api"),
		JWTAlg:        e.str("JWT_ALG", "HS256"),
		JWTKID:        e.str("JWT_KID", ""),
	}

	/** cookie config */
	cookieConfig := &CookieConfig{
		CookieDomain:   e.str("COOKIE_DOMAIN", ""),
		CookieSecure:   e.boolean("COOKIE_SECURE", true),
		CookieSamesite: e.str("COOKIE_SAMESITE", "strict"),
	}

	hashConfig := &HashConfig{
		Cost: e.integer("BCRYPT_COST", bcrypt.DefaultCost),
	}

	redisConfig := &RedisConfig{
		Addr:     e.str("REDIS_ADDR", "127.0.0.1:6379"),
		Password: e.str("REDIS_PASSWORD", ""),
		DB:       e.integer("REDIS_DB", 0),
	}

	revocationConfig := &RevocationConfig{
		Backend: strings.ToLower(e.str("REVOCATION_BACKEND", RevocationNone)),
	}

	if len(e.errs) > 0 {
		return nil, e.errs[0]
	}

	cfg := &Config{
		AppConfig:        appConfig,
		DbConfig:         dbConfig,
		JWTConfig:        jwtConfig,
		CookieConfig:     cookieConfig,
		HashConfig:       hashConfig,
		RedisConfig:      redisConfig,
		RevocationConfig: revocationConfig,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the process cannot serve without.
func (c *Config) Validate() error {
	if c.JWTConfig.Secret == "" {
		return autherr.ConfigurationFatal("JWT_SECRET", "signing secret must be set")
	}
	if c.JWTConfig.AccessTTL <= 0 {
		return autherr.ConfigurationFatal("ACCESS_TTL", "must be positive")
	}
	if c.JWTConfig.RefreshTTL <= c.JWTConfig.AccessTTL {
		return autherr.ConfigurationFatal("REFRESH_TTL", "must be longer than ACCESS_TTL")
	}
	if c.HashConfig.Cost < bcrypt.MinCost || c.HashConfig.Cost > password.MaxCost {
		return autherr.ConfigurationFatal("BCRYPT_COST", fmt.Sprintf("must be within [%d, %d]", bcrypt.MinCost, password.MaxCost))
	}
	switch c.RevocationConfig.Backend {
	case RevocationNone, RevocationMemory, RevocationRedis:
	case RevocationPostgres:
		if c.DbConfig.DSN == "" {
			return autherr.ConfigurationFatal("POSTGRES_DSN", "required by the postgres revocation backend")
		}
	default:
		return autherr.ConfigurationFatal("REVOCATION_BACKEND", fmt.Sprintf("unknown backend %q", c.RevocationConfig.Backend))
	}
	return nil
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"campus-eats-api/models"

	"github.com/caarlos0/env/v6"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"campus_eats.db"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`

	RedisAddr          string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	RedisTimeout       time.Duration `env:"REDIS_TIMEOUT" envDefault:"2s"`
	RedisRetryInterval time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"15s"`

	// JWTSecret used to sign tokens
	JWTSecret string        `env:"JWT_SECRET" envDefault:"campus_eats_dev_secret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	MaxOrderTotal     int   `env:"MAX_ORDER_TOTAL" envDefault:"10000"`
	GlobalRateLimit   int64 `env:"GLOBAL_RATE_LIMIT" envDefault:"10000"`
	RateLimitDisabled bool  `env:"RATE_LIMIT_DISABLED" envDefault:"false"`

	MenuLocalCacheTTL time.Duration `env:"MENU_LOCAL_CACHE_TTL" envDefault:"10s"`
	MenuCacheTTL      time.Duration `env:"MENU_CACHE_TTL" envDefault:"60s"`
	SettingsCacheTTL  time.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"60s"`
	StatsCacheTTL     time.Duration `env:"STATS_CACHE_TTL" envDefault:"120s"`

	ProofDir      string        `env:"PROOF_DIR" envDefault:"uploads/proofs"`
	ProofURLTTL   time.Duration `env:"PROOF_URL_TTL" envDefault:"5m"`
	PublicBaseURL string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// Models lists every table managed by AutoMigrate, parents first.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.MenuItem{},
		&models.Setting{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
		&models.PaymentReference{},
	}
}

// InitDB opens the database named by url and migrates the schema.
// A postgres:// url selects Postgres, anything else is a SQLite path.
func InitDB(url string, debug bool) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), debug),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		db, err = gorm.Open(postgres.Open(url), gcfg)
	} else {
		db, err = gorm.Open(sqlite.Open(sqliteDSN(url)), gcfg)
		if err == nil {
			// SQLite allows a single writer; one connection keeps transactions serialized.
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func newGormLogger(w logger.Writer, debug bool) logger.Interface {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	return logger.New(w, logger.Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      level,
		// unset settings are looked up on every order
		IgnoreRecordNotFoundError: true,
	})
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DBSource string `env:"DB_SOURCE" envDefault:"parley.db"`

	// Empty disables the presence tracker.
	RedisAddr string `env:"REDIS_ADDR"`

	TokenSecret   string        `env:"TOKEN_SECRET" envDefault:"dev-secret-change-me"`
	TokenDuration time.Duration `env:"TOKEN_DURATION" envDefault:"24h"`

	FilesDir string `env:"FILES_DIR" envDefault:"data/files"`
	FilesURL string `env:"FILES_URL" envDefault:"/files"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// When set, a group chat left with no active members and no messages
	// is deleted instead of going dormant.
	ReapEmptyChats bool `env:"REAP_EMPTY_CHATS"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

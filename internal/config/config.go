package config

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string `mapstructure:"PORT"`
	Env               string `mapstructure:"ENV"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32  `mapstructure:"DB_MIN_CONNS"`
	EncryptionKey     string `mapstructure:"ENCRYPTION_KEY"`
	EncryptionKeyFile string `mapstructure:"ENCRYPTION_KEY_FILE"`
	ActorTokenSecret  string `mapstructure:"ACTOR_TOKEN_SECRET"`
	DefaultActor      string `mapstructure:"DEFAULT_ACTOR"`
	MigrationsDir     string `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("ENCRYPTION_KEY_FILE", "encryption.key")
	v.SetDefault("DEFAULT_ACTOR", "system")
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("ENCRYPTION_KEY")
	v.BindEnv("ENCRYPTION_KEY_FILE")
	v.BindEnv("ACTOR_TOKEN_SECRET")
	v.BindEnv("DEFAULT_ACTOR")
	v.BindEnv("MIGRATIONS_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. ENCRYPTION_KEY, when
// supplied through the environment, must be a valid 64-character hex string
// (32 bytes when decoded); otherwise the key file path must be usable.
func (c *Config) Validate() error {
	if c.EncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	} else if c.EncryptionKeyFile == "" {
		return fmt.Errorf("ENCRYPTION_KEY_FILE is required when ENCRYPTION_KEY is not set")
	}

	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool bounds: min=%d max=%d", c.DBMinConns, c.DBMaxConns)
	}

	return nil
}

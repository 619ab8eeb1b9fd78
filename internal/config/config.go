package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Account   AccountConfig   `mapstructure:"account"`
	API       APIConfig       `mapstructure:"api"`
	Receipts  ReceiptsConfig  `mapstructure:"receipts"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// AccountConfig identifies the sending account itself. The identifier is
// resolved (or created) as a conversation at startup; migrated messages
// record the account's own linked-device copy under that conversation.
type AccountConfig struct {
	Identifier string `mapstructure:"identifier"`
	Name       string `mapstructure:"name"`
}

type APIConfig struct {
	Key string `mapstructure:"key"`
}

// ReceiptsConfig holds the shared secret the delivery transport signs
// receipt callbacks with.
type ReceiptsConfig struct {
	Secret string `mapstructure:"secret"`
}

type BackfillConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Workers   int           `mapstructure:"workers"`
	BatchSize int           `mapstructure:"batch_size"`
	Interval  time.Duration `mapstructure:"interval"`
}

// DirectoryConfig controls how often the server reloads its conversation
// directory snapshot, picking up conversations created out of process.
type DirectoryConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("sendtrack")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sendtrack")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SENDTRACK")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/sendtrack.db")

	viper.SetDefault("account.name", "Note to Self")

	viper.SetDefault("backfill.enabled", true)
	viper.SetDefault("backfill.workers", 4)
	viper.SetDefault("backfill.batch_size", 100)
	viper.SetDefault("backfill.interval", 5*time.Second)

	viper.SetDefault("directory.refresh_interval", 30*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

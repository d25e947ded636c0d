// Package config загружает конфигурацию агента и сервера.
// Приоритет: флаги, переменные окружения CHATSYNC_*, файл chatsync.yaml, значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iudanet/chatsync/internal/logger"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "CHATSYNC"

// Ключи, которые привязываются к флагам
const (
	KeyDataDir    = "data_dir"
	KeyDeviceName = "device_name"
	KeyLogLevel   = "log.level"
	KeyLogFormat  = "log.format"
	KeyLogFile    = "log.file"

	KeyServerURL      = "sync.server_url"
	KeySyncInterval   = "sync.interval"
	KeyPullLimit      = "sync.pull_limit"
	KeyPushBatchSize  = "sync.push_batch_size"
	KeyRequestTimeout = "sync.request_timeout"
	KeyRetries        = "sync.retries"

	KeySourceDir   = "source.dir"
	KeySourceVSCDB = "source.vscdb"
	KeySourceWatch = "source.watch"

	KeySwarmEnabled = "swarm.enabled"
	KeySwarmListen  = "swarm.listen"
	KeySwarmPeers   = "swarm.peers"
	KeySwarmMDNS    = "swarm.mdns"
	KeyPeerTTL      = "swarm.peer_ttl"

	KeyServerListen    = "server.listen"
	KeyServerMetrics   = "server.metrics_listen"
	KeyServerDB        = "server.db"
	KeyServerRateLimit = "server.rate_limit"
	KeyServerShutdown  = "server.shutdown_timeout"
)

// Config полная конфигурация
type Config struct {
	DataDir    string       `mapstructure:"data_dir"`
	DeviceName string       `mapstructure:"device_name"`
	Log        LogConfig    `mapstructure:"log"`
	Source     SourceConfig `mapstructure:"source"`
	Server     ServerConfig `mapstructure:"server"`
	Swarm      SwarmConfig  `mapstructure:"swarm"`
	Sync       SyncConfig   `mapstructure:"sync"`
}

// LogConfig параметры логирования
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SyncConfig обмен с сервером
type SyncConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	DB             string        `mapstructure:"db"`
	Interval       time.Duration `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PullLimit      int           `mapstructure:"pull_limit"`
	PushBatchSize  int           `mapstructure:"push_batch_size"`
	Retries        uint64        `mapstructure:"retries"`
}

// SourceConfig локальные источники разговоров
type SourceConfig struct {
	Dir      string        `mapstructure:"dir"`
	VSCDB    string        `mapstructure:"vscdb"`
	Debounce time.Duration `mapstructure:"debounce"`
	Watch    bool          `mapstructure:"watch"`
}

// SwarmConfig обмен с устройствами в локальной сети
type SwarmConfig struct {
	Listen           string        `mapstructure:"listen"`
	Peers            []string      `mapstructure:"peers"`
	PeerTTL          time.Duration `mapstructure:"peer_ttl"`
	AnnounceInterval time.Duration `mapstructure:"announce_interval"`
	ResyncInterval   time.Duration `mapstructure:"resync_interval"`
	Enabled          bool          `mapstructure:"enabled"`
	MDNS             bool          `mapstructure:"mdns"`
}

// ServerConfig сервер синхронизации
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	MetricsListen   string        `mapstructure:"metrics_listen"`
	DB              string        `mapstructure:"db"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
}

// New создает viper с умолчаниями и чтением окружения
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults значения по умолчанию
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, defaultDataDir())
	v.SetDefault(KeyDeviceName, "")

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, logger.FormatAuto)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault(KeyServerURL, "http://localhost:8080")
	v.SetDefault("sync.db", "chatsync.db")
	v.SetDefault(KeySyncInterval, 5*time.Minute)
	v.SetDefault(KeyPullLimit, 500)
	v.SetDefault(KeyPushBatchSize, 100)
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyRetries, 3)

	v.SetDefault(KeySourceDir, "")
	v.SetDefault(KeySourceVSCDB, "")
	v.SetDefault(KeySourceWatch, true)
	v.SetDefault("source.debounce", 2*time.Second)

	v.SetDefault(KeySwarmEnabled, false)
	v.SetDefault(KeySwarmListen, ":7946")
	v.SetDefault(KeySwarmPeers, []string{})
	v.SetDefault(KeySwarmMDNS, true)
	v.SetDefault(KeyPeerTTL, 2*time.Minute)
	v.SetDefault("swarm.announce_interval", 10*time.Second)
	v.SetDefault("swarm.resync_interval", time.Minute)

	v.SetDefault(KeyServerListen, ":8080")
	v.SetDefault(KeyServerMetrics, ":2112")
	v.SetDefault(KeyServerDB, "chatsync-server.db")
	v.SetDefault(KeyServerRateLimit, 120)
	v.SetDefault(KeyServerShutdown, 10*time.Second)
}

// Load читает файл конфигурации и собирает Config.
// Пустой file означает chatsync.yaml в каталоге данных, его отсутствие не ошибка.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("chatsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(expandHome(v.GetString(KeyDataDir)))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Sync.DB = cfg.resolve(cfg.Sync.DB)
	cfg.Server.DB = cfg.resolve(cfg.Server.DB)
	cfg.Source.Dir = expandHome(cfg.Source.Dir)
	cfg.Source.VSCDB = expandHome(cfg.Source.VSCDB)
	if cfg.Log.File != "" {
		cfg.Log.File = cfg.resolve(cfg.Log.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые иначе всплыли бы в середине цикла
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data_dir must not be empty")
	case c.Sync.PullLimit <= 0:
		return fmt.Errorf("sync.pull_limit must be positive, got %d", c.Sync.PullLimit)
	case c.Sync.PushBatchSize <= 0:
		return fmt.Errorf("sync.push_batch_size must be positive, got %d", c.Sync.PushBatchSize)
	case c.Sync.Interval < 0:
		return fmt.Errorf("sync.interval must not be negative, got %s", c.Sync.Interval)
	case c.Swarm.PeerTTL <= 0:
		return fmt.Errorf("swarm.peer_ttl must be positive, got %s", c.Swarm.PeerTTL)
	case c.Server.RateLimit < 0:
		return fmt.Errorf("server.rate_limit must not be negative, got %d", c.Server.RateLimit)
	}
	return nil
}

// Logger параметры для logger.New
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// resolve относительные пути считаются от каталога данных
func (c *Config) resolve(path string) string {
	path = expandHome(path)
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatsync"
	}
	return filepath.Join(home, ".chatsync")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

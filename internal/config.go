package internal

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const (
	StorageModeMemory = "memory"
	StorageModeDisk   = "disk"
)

type NovaLoopConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Mode         string `mapstructure:"mode"`
		Workdir      string `mapstructure:"workdir"`
		PoolCapacity int    `mapstructure:"pool_capacity"`
	} `mapstructure:"storage"`

	Records struct {
		ArtifactDir string `mapstructure:"artifact_dir"`
	} `mapstructure:"records"`

	Looper struct {
		TableName     string `mapstructure:"table_name"`
		ProgressEvery int64  `mapstructure:"progress_every"`
		ChunkRows     int64  `mapstructure:"chunk_rows"`
	} `mapstructure:"looper"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novaloop")
	v.SetDefault("storage.mode", StorageModeMemory)
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.pool_capacity", 128)
	v.SetDefault("records.artifact_dir", "")
	v.SetDefault("looper.table_name", "Events")
	v.SetDefault("looper.progress_every", 10000)
	v.SetDefault("looper.chunk_rows", 0)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads a YAML config. An empty path uses defaults only.
// NOVALOOP_* environment variables override file values, e.g.
// NOVALOOP_STORAGE_MODE=disk.
func LoadConfig(path string) (*NovaLoopConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NOVALOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg NovaLoopConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	switch cfg.Storage.Mode {
	case StorageModeMemory, StorageModeDisk:
	default:
		return nil, fmt.Errorf("config: unknown storage mode %q", cfg.Storage.Mode)
	}
	return &cfg, nil
}

// LogLevel parses Log.Level, falling back to info.
func (c *NovaLoopConfig) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

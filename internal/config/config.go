package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// NotifySettings control terminal-state notification dispatch.
type NotifySettings struct {
	OnSuccess  bool          `mapstructure:"on_success"`
	OnFailure  bool          `mapstructure:"on_failure"`
	Recipients []string      `mapstructure:"recipients"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Config holds all configuration for the backup daemon. The mapstructure
// tags are used by Viper to unmarshal the data.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	// Store selects the job/history backend: "etcd" or "memory".
	Store         string        `mapstructure:"store" validate:"oneof=etcd memory"`
	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout   time.Duration `mapstructure:"etcd_timeout" validate:"gt=0"`

	RclonePath      string        `mapstructure:"rclone_path" validate:"required"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout" validate:"gte=0"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`

	SweepInterval      time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	ReconcileInterval  time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold" validate:"gt=0"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	Notify NotifySettings `mapstructure:"notify"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("store", "etcd")
	viper.SetDefault("etcd_timeout", "5s")
	viper.SetDefault("rclone_path", "rclone")
	viper.SetDefault("transfer_timeout", "0s")
	viper.SetDefault("max_attempts", 3)
	viper.SetDefault("retry_backoff", "10s")
	viper.SetDefault("sweep_interval", "30s")
	viper.SetDefault("reconcile_interval", "5m")
	viper.SetDefault("staleness_threshold", "1h")
	viper.SetDefault("shutdown_timeout", "30s")
	viper.SetDefault("notify.on_success", false)
	viper.SetDefault("notify.on_failure", true)
	viper.SetDefault("notify.timeout", "15s")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file; defaults and env vars are enough.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Store == "etcd" && len(cfg.EtcdEndpoints) == 0 {
		return nil, fmt.Errorf("invalid configuration: etcd store requires etcd_endpoints")
	}
	return &cfg, nil
}

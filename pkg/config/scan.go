package config

type ScanConfig struct {
	// Workers is the number of buckets differenced concurrently.
	Workers int `mapstructure:"workers" validate:"gte=1"`
	// MaxConcurrentIOs bounds cluster operations in flight across all
	// workers.
	MaxConcurrentIOs int64 `mapstructure:"max_concurrent_ios" validate:"gte=1"`
	// MaxTries bounds attempts of a cluster call that keeps failing with
	// transient errors.
	MaxTries uint `mapstructure:"max_tries" validate:"gte=1"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
}

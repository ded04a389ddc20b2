// Package config defines the remora configuration surface. Values arrive
// through viper, which merges the config file, REMORA_* environment
// variables and bound command line flags before [Load] unmarshals them.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Validatable is any config struct that can check itself after unmarshalling.
type Validatable interface {
	Validate() error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(c any) error {
	return validate.Struct(c)
}

type Config struct {
	Repo RepoConfig `mapstructure:"repo"`
	Scan ScanConfig `mapstructure:"scan"`
	Log  LogConfig  `mapstructure:"log"`
}

func (c Config) Validate() error {
	return validateConfig(c)
}

// Load unmarshals the globally bound viper settings into a config struct and
// validates it.
func Load[T Validatable]() (T, error) {
	var out T
	if err := viper.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unable to decode config, %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("invalid config, %w", err)
	}
	return out, nil
}

package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs that check invariants env tags
// cannot express, e.g. a driver name from a fixed set.
type Validator interface {
	Validate() error
}

var defaultEnvLoaded sync.Once

// Load fills v from environment variables according to its env tags.
//
// The first call loads a .env file from the working directory if one exists;
// variables already set in the process environment win.
//
//	type StoreConfig struct {
//		Driver string `env:"TENANT_STORE_DRIVER" envDefault:"postgres"`
//	}
//
//	var cfg StoreConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// If *T implements Validator, Validate runs after parsing.
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// A missing .env file is the normal case outside development.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}
	return nil
}

// MustLoad is Load for values the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// LoadEnv loads the given dotenv files into the process environment,
// overriding variables that are already set. Used by tenantctl --env-file.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Overload(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

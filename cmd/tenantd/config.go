package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/agencyhq/tenancy/pkg/logger"
)

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
	driverRedis    = "redis"
)

var (
	errUnknownDriver   = errors.New("unknown driver")
	errMissingAdminKey = errors.New("TENANT_ADMIN_API_KEY is required in production")
)

type appConfig struct {
	Env                string `env:"APP_ENV" envDefault:"development"`               // Env selects logging defaults: development, staging or production.
	StoreDriver        string `env:"TENANT_STORE_DRIVER" envDefault:"postgres"`      // StoreDriver is postgres or memory.
	CacheDriver        string `env:"TENANT_CACHE_DRIVER" envDefault:"memory"`        // CacheDriver is memory or redis.
	SeedFile           string `env:"TENANT_SEED_FILE"`                               // SeedFile fills the memory store at startup.
	AdminAPIKey        string `env:"TENANT_ADMIN_API_KEY"`                           // AdminAPIKey guards /admin; empty leaves it open outside production.
	TrustForwardedHost bool   `env:"TENANT_TRUST_FORWARDED_HOST" envDefault:"false"` // TrustForwardedHost resolves tenants from X-Forwarded-Host.
}

func (c *appConfig) Validate() error {
	if !slices.Contains([]string{driverPostgres, driverMemory}, c.StoreDriver) {
		return fmt.Errorf("%w: TENANT_STORE_DRIVER=%q", errUnknownDriver, c.StoreDriver)
	}
	if !slices.Contains([]string{driverMemory, driverRedis}, c.CacheDriver) {
		return fmt.Errorf("%w: TENANT_CACHE_DRIVER=%q", errUnknownDriver, c.CacheDriver)
	}
	if c.production() && c.AdminAPIKey == "" {
		return errMissingAdminKey
	}
	return nil
}

func (c *appConfig) production() bool {
	return c.Env == logger.EnvProduction || c.Env == "prod"
}

// Package config loads service configuration from the environment.
//
// Each package that needs settings declares its own struct with env and
// envDefault tags (pg.Config, redis.Config, httpserver.Config,
// tenant.ResolverConfig) and the binaries load them with Load:
//
//	var pgCfg pg.Config
//	if err := config.Load(&pgCfg); err != nil {
//		return err
//	}
//
// Parsing is done by github.com/caarlos0/env; a .env file in the working
// directory is read once via github.com/joho/godotenv. Structs that implement
// Validator are validated after parsing.
package config

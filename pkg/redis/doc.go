// Package redis connects to the Redis server shared by every tenantd replica.
//
// The connection backs the tenant cache (see tenant.NewRedisCache) so that a
// domain verification on one replica invalidates the cached tenant everywhere.
//
// # Usage
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	cache := tenant.NewRedisCache(client)
//
// Healthcheck returns a check suitable for the /readyz endpoint.
//
// Errors are sentinel values joined with the go-redis error via errors.Join.
package redis

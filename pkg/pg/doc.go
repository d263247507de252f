// Package pg bootstraps the Postgres connection used by the tenant store.
//
// It is a thin layer over pgx/v5 and goose/v3:
//
//   - Config is populated from PG_* environment variables.
//   - Connect opens a *pgxpool.Pool, retrying while the database starts.
//   - Migrate applies goose migrations from an fs.FS, normally the embedded
//     migrations package.
//   - Healthcheck returns a check for readiness endpoints.
//
// # Usage
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, migrations.Dir, cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify pgx errors without leaking
// driver types into callers.
package pg

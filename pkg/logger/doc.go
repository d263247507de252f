// Package logger builds *slog.Logger instances with functional options and
// injects request-scoped values (request id, resolved tenant) from
// context.Context into every record.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(os.Getenv("APP_ENV"), "tenantd"),
//		logger.WithContextExtractors(tenant.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "tenant resolved", logger.Host(r.Host), logger.Outcome("matched"))
//
// Attribute helpers in attr.go keep key names consistent across packages.
package logger

// Command tenantd serves tenant resolution over HTTP: every request is
// resolved to a tenant from its Host header, and operators manage custom
// domains through the /admin API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/agencyhq/tenancy/pkg/config"
	"github.com/agencyhq/tenancy/pkg/httpserver"
	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

var errMissingSecret = errors.New("TENANT_VERIFICATION_SECRET is required in production")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tenantd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		app    appConfig
		rcfg   tenant.ResolverConfig
		server httpserver.Config
	)
	if err := errors.Join(config.Load(&app), config.Load(&rcfg), config.Load(&server)); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, "tenantd"),
		logger.WithContextExtractors(requestIDExtractor, tenant.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if app.production() && rcfg.VerificationSecret == "" {
		return errMissingSecret
	}
	if app.AdminAPIKey == "" {
		log.WarnContext(ctx, "TENANT_ADMIN_API_KEY is empty, admin API is unauthenticated outside production")
	}

	d, err := newDeps(ctx, app, rcfg, log)
	if err != nil {
		return err
	}

	srv := httpserver.New(server, newRouter(d, app, log),
		httpserver.WithLogger(log),
		httpserver.WithShutdownHook(d.close),
	)
	return srv.Run(ctx)
}

func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return slog.String("request_id", id), true
}

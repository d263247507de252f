// Package httpserver runs tenantd's HTTP listener with graceful shutdown and
// provides the liveness and readiness handlers.
//
// # Usage
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.New(cfg, router,
//		httpserver.WithLogger(log),
//		httpserver.WithShutdownHook(func(context.Context) error { pool.Close(); return nil }),
//	)
//	if err := srv.Run(ctx); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Run wraps listen errors with ErrStart; Shutdown wraps drain and hook
// errors with ErrShutdown.
package httpserver

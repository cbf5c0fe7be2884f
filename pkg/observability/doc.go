// Package observability provides logging, Prometheus metrics, OpenTelemetry
// tracing, health checks and graceful shutdown for the gateway.
//
// # Logging
//
//	logger, err := observability.NewLogger("info", "json", os.Stdout)
//	log := observability.LoggerFromContext(r.Context()) // request-scoped entry
//
// # Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	router.Handle("/metrics", metrics.Handler())
//
// All recording methods are nil-safe so components can run without metrics.
//
// # Health checks
//
//	checker := observability.NewHealthChecker(version, 5*time.Second).
//		AddCheck("redis", true, observability.PingCheck(store)).
//		AddCheck("postgres", true, observability.SQLCheck(db))
//	observability.RegisterHealthRoutes(router, checker)
//
// Probes run concurrently; a failing critical probe turns readiness into 503.
//
// # Tracing
//
//	tp, err := observability.InitTracing(ctx, cfg, logger)
//	defer observability.ShutdownTracing(ctx, tp)
package observability

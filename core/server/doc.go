// Package server provides an HTTP server with graceful shutdown, configurable
// options, and production-ready defaults. The scheduling daemon uses it for
// its operational surface: Prometheus metrics, health probes, and queue
// inspection endpoints.
//
// # Basic Usage
//
// Create and run a server with default configuration:
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", collector.Handler())
//
//	ctx := context.Background()
//	if err := server.Run(ctx, ":9090", mux); err != nil {
//		log.Fatal(err)
//	}
//
// # Configuration
//
// Options override the defaults, and Config maps every setting to an
// environment variable for daemon deployments:
//
//	srv, err := server.NewFromConfig(cfg,
//		server.WithLogger(logger),
//		server.WithShutdownTimeout(60*time.Second))
//
// # Coordinated Lifecycle
//
// Run returns an errgroup-compatible closure that shuts the server down
// gracefully when the group context is cancelled:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, mux))
//	g.Go(coord.Run(ctx))
//	if err := g.Wait(); err != nil {
//		log.Fatal(err)
//	}
package server

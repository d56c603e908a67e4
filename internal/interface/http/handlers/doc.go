// Package handlers contains HTTP handler interfaces, implementations, and middleware.
//
// This package provides:
//   - Health check interfaces and implementations
//   - Identity authentication (session JWTs and tenant API keys)
//   - Catalog upgrade webhook handling
//   - Reusable middleware components
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewPingCheck(db))
//	checker.AddCheck("cache", handlers.NewPingCheck(cache))
//	checker.AddCheck("content_api", handlers.NewExternalAPICheck(contentClient))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("Health check failed: %s", status.Message)
//	}
//
// # Authentication
//
// IdentityAuth resolves the caller's identity from either a platform session
// JWT or a tenant service key, and injects it into the request context:
//
//	auth := handlers.NewIdentityAuth([]byte(secret), tenantRepo)
//	protected := auth.Middleware(myHandler)
//
//	// Inside a handler:
//	identity, ok := handlers.IdentityFrom(r.Context())
//
// # Catalog Webhooks
//
// The catalog service notifies the engine after publishing a new career
// catalog version. The handler deduplicates redeliveries and hands the
// version to a callback, typically the re-evaluation sweep:
//
//	handler := handlers.NewCatalogWebhookHandler(func(ctx context.Context, version int) error {
//	    return reevaluateJob.Run(ctx)
//	})
//
// # Middleware
//
// The package provides several reusable middleware components:
//
//	// Request timeout
//	withTimeout := handlers.TimeoutMiddleware(30 * time.Second)(myHandler)
//
//	// Security headers
//	secure := handlers.SecurityHeadersMiddleware(myHandler)
//
//	// Chain multiple middleware
//	handler := handlers.ChainHandler(
//	    myHandler,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.NoCacheMiddleware,
//	    auth.Middleware,
//	)
package handlers

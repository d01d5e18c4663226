// Package http is the inbound net/http adapter for the request bridge.
//
// HTTPTransport owns the listener and maps net/http's connection lifecycle
// onto the interceptor chain: ConnContext runs the connect hooks for each
// accepted connection and ConnState runs the disconnect hooks when the
// connection closes or is hijacked. Connections still open at shutdown are
// released after the server drains.
//
// # Usage
//
//	transport := http.NewHTTPTransport(bridge,
//	    http.WithAddr(":8080"),
//	    http.WithTLS("cert.pem", "key.pem"),
//	    http.WithMetrics(metrics, registry),
//	    http.WithHealthChecker(health),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	GET /health   - JSON component health (503 when unhealthy)
//	GET /metrics  - Prometheus exposition
//	*   /*        - everything else goes through the bridge and route table
//
// # Middleware
//
// Bridged requests pass through, outermost first:
//
//  1. MetricsMiddleware - duration histogram and status-class counter
//  2. RequestIDMiddleware - X-Request-ID propagation and logger enrichment
//  3. bridge handler - buffers the body and calls BridgeService.Serve
package http

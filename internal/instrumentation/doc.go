// Package instrumentation provides OpenTelemetry instrumentation for the
// taskpin daemon.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, OAuth operations, routed
//     messages, cache lookups, and task API calls
//   - Distributed tracing for request flows and API calls
//   - Prometheus metrics export via /metrics endpoint on a dedicated port
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Task API Metrics:
//   - task_api_operations_total: Counter of API operations by operation and status
//   - task_api_operation_duration_seconds: Histogram of API operation durations
//
// OAuth Authentication Metrics:
//   - oauth_auth_total: Counter of OAuth authentication events by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Message Routing Metrics:
//   - messages_total: Counter of dispatched messages by type and status
//   - message_duration_seconds: Histogram of message handling durations
//
// Cache Metrics:
//   - cache_lookups_total: Counter of cache lookups by resource and result
//     (hit, stale, miss, expired, bypass)
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling
//   - Routed messages (message.<type>)
//   - Task API calls (api.<operation>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: taskpin)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "taskpin",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/api/message", 200, time.Since(start))
//
//	// Record a task API operation
//	recorder.RecordAPIOperation(ctx, "create_task", "success", time.Since(start))
package instrumentation

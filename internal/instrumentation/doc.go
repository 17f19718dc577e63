// Package instrumentation provides OpenTelemetry metrics and tracing for inbleach.
//
// # Metrics
//
// HTTP facade:
//   - http_requests_total: HTTP requests by method, route and status
//   - http_request_duration_seconds: HTTP request durations
//
// Google API:
//   - google_api_operations_total: Gmail API calls by operation and status
//   - google_api_operation_duration_seconds: Gmail API call durations
//
// OAuth:
//   - oauth_auth_total: authorization code exchanges by result
//
// Unsubscribe:
//   - unsubscribe_attempts_total: attempts by result and link source
//   - unsubscribe_request_duration_seconds: unsubscribe link request durations
//   - unsubscribe_batch_size: message IDs per bulk request
//
// # Tracing
//
// Spans are created for Gmail API calls (google.gmail.<operation>) and for
// each unsubscribe attempt (unsubscribe.attempt).
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: enable or disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces and metrics
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate between 0.0 and 1.0 (default: 0.1)
//   - METRICS_DETAILED_LABELS: add the unsubscribe host label (default: false)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordGoogleAPIOperation(ctx, "gmail", "get", "success", time.Since(start))
package instrumentation

// Package server exposes inbleach over HTTP.
//
// API is a gin router with the OAuth consent endpoints, the message
// endpoints and the bulk unsubscribe endpoint. Credentials obtained in the
// OAuth callback are handed back to the browser as http-only cookies and
// rebuilt from those cookies on every request; the server itself keeps no
// per-user state. A ClientFactory turns the rebuilt credentials into a
// mail client, which lets tests substitute a fake provider.
//
// Domain errors are mapped to status codes in one place:
//   - gmail.ErrNotFound: 404
//   - *gmail.ProviderError: the provider's status code
//   - google.ErrAuth: 401
//   - anything else: 502
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed on the API
// router. MetricsServer serves the Prometheus scrape endpoint on its own
// listener.
package server

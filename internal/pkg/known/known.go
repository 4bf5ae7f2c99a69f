// Package known holds identifiers shared by the tokenctl server and its middleware.
package known

const (
	// XRequestID is the header carrying the request id.
	XRequestID = "X-Request-ID"

	// ContextRequestIDKey is the gin context key under which the request id is stored.
	ContextRequestIDKey = "request_id"
)

// Routes served by the apiserver.
const (
	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"
	RouteStats   = "/stats"
)

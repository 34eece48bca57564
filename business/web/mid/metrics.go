package mid

import (
	"context"
	"net/http"

	"github.com/pulsebeacon/pulse/foundation/metrics"
	"github.com/pulsebeacon/pulse/foundation/web"
)

// Metrics updates the request counters served from the debug endpoint.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			metrics.WebRequests.Inc()

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}

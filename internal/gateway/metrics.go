package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler serves the injected gatherer in the Prometheus exposition
// format. Collection errors are logged and the remaining metrics served.
func (g *Gateway) metricsHandler() http.Handler {
	return promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{
		ErrorLog:      promLogger{g},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger adapts the gateway logger to promhttp.Logger.
type promLogger struct{ g *Gateway }

func (l promLogger) Println(v ...any) {
	l.g.logger.Warn("gateway: metrics collection error", "detail", v)
}

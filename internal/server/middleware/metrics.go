package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

// Metrics собирает длительность, размер и число запросов по обработчикам.
// handlerID фиксирует метку обработчика, чтобы путь с параметрами не раздувал кардинальность.
func Metrics(registry prometheus.Registerer) func(handlerID string, next http.Handler) http.Handler {
	mdlw := httpmetrics.New(httpmetrics.Config{
		Recorder: metrics.NewRecorder(metrics.Config{
			Registry: registry,
			Prefix:   "chatsync",
		}),
	})

	return func(handlerID string, next http.Handler) http.Handler {
		return std.Handler(handlerID, mdlw, next)
	}
}

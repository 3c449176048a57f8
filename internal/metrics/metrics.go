package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filevault_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	TokenOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_token_ops_total",
		Help: "Token lifecycle operations by outcome",
	}, []string{"op", "result"})
	FileOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_file_ops_total",
		Help: "File persistence operations by outcome",
	}, []string{"op", "result"})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration, TokenOpsTotal, FileOpsTotal)
}

// ObserveToken counts one token operation. A nil error is recorded as "ok".
func ObserveToken(op string, err error) {
	TokenOpsTotal.WithLabelValues(op, result(err)).Inc()
}

// ObserveFile counts one file operation.
func ObserveFile(op string, err error) {
	FileOpsTotal.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// Middleware records request totals and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			labels := prometheus.Labels{"method": c.Request().Method, "path": path, "status": strconv.Itoa(status)}
			HTTPRequestsTotal.With(labels).Inc()
			HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the default registry for scraping.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

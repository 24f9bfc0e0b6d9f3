package echo

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"ledger-mirror/internal/metrics"
)

// MetricsMiddleware counts responses and observes request duration per route.
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unknown"
			}

			metrics.Metrics.Api.Responses.WithLabelValues(route, strconv.Itoa(status)).Inc()
			metrics.Metrics.Api.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

package echo

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log2 "github.com/labstack/gommon/log"

	"ledger-mirror/internal/pkg/log"
)

const (
	apiReadTimeout  = 5 * time.Second
	apiWriteTimeout = 30 * time.Second

	requestsPerSecond = 20
)

func InitHandlersStart(router *echo.Echo) {
	router.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		LogErrorFunc:    LogPanic,
	}))
	router.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		ErrorMessage: "Request Timeout",
		Timeout:      apiWriteTimeout,
	}))
	router.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURIPath: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Logger.Mirror.Warnf("%s %s: code %d: %s", v.Method, v.URIPath, v.Status, v.Error)
				return nil
			}
			log.Logger.Mirror.Debugf("%s %s: code %d", v.Method, v.URIPath, v.Status)
			return nil
		},
	}))

	router.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
	}))
	router.Use(MetricsMiddleware())

	// general rate limit
	router.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(requestsPerSecond)))
}

func SetupServer(router *echo.Echo) {
	router.HideBanner = true
	router.HidePort = true
	router.Server.ReadTimeout = apiReadTimeout
	router.Server.WriteTimeout = apiWriteTimeout + 2*time.Second // must be greater than apiWriteTimeout, which used for timeout middleware
	router.Logger.SetLevel(log2.OFF)
}

func LogPanic(c echo.Context, err error, stack []byte) error {
	log.Logger.Mirror.Errorf("PANIC RECOVER: %s %s", err, strconv.Quote(string(stack)))
	return nil
}

package metric

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck - зависимость, без которой сервер рандеву не обслуживает запросы
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewServer создает сервер метрик. /health отвечает 503, если хоть одна проверка не прошла.
func NewServer(checks ...HealthCheck) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				failed[hc.Name] = err.Error()
			}
		}

		if len(failed) > 0 {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}

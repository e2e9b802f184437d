package server

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/infra/ports/http/handlers"
	"github.com/qrave1/PairCall/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	rendezvousHandler *handlers.RendezvousHandler,
	iceHandler *handlers.IceHandler,
	watchHandler *handlers.WatchHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		v1.Use(middleware.Identity(cfg.JWTSecret))
		{
			v1.GET("/pairing-key", rendezvousHandler.PairingKey)
			v1.GET("/ice", iceHandler.IceServers)

			rooms := v1.Group("/rooms/:key")
			{
				rooms.GET("", rendezvousHandler.GetRoom)
				rooms.POST("", rendezvousHandler.CreateRoom)
				rooms.PUT("/answer", rendezvousHandler.SetAnswer)
				rooms.POST("/candidates", rendezvousHandler.PublishCandidate)
				rooms.POST("/messages", rendezvousHandler.AppendMessage)
				rooms.GET("/watch/:topic", watchHandler.Handle)
			}
		}
	}

	return e
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/application/metric"
	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/infra/adapters/memory"
	"github.com/qrave1/PairCall/internal/infra/adapters/postgres"
	"github.com/qrave1/PairCall/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/PairCall/internal/infra/ports/http/handlers"
	"github.com/qrave1/PairCall/internal/infra/ports/http/server"
	"github.com/qrave1/PairCall/internal/infra/ports/turn"
	"github.com/qrave1/PairCall/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rendezvous server (default command)",
	Run: func(cmd *cobra.Command, args []string) {
		runApp()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	level := new(slog.LevelVar)

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	if cfg.Debug {
		level.Set(slog.LevelDebug)
	}

	slog.Info("Running app", slog.Bool("debug", cfg.Debug), slog.String("store", cfg.Store))

	var (
		store  signaling.Store
		checks []metric.HealthCheck
	)

	switch cfg.Store {
	case config.StorePostgres:
		dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			slog.Error("connect to postgres", slog.Any(constant.Error, err))
			os.Exit(1)
		}
		defer dbConn.Close()

		if cfg.AutoMigrate {
			if err = postgres.Migrate(ctx, dbConn); err != nil {
				slog.Error("migrate postgres", slog.Any(constant.Error, err))
				os.Exit(1)
			}
		}

		store = repository.NewRendezvousRepo(dbConn, cfg.PollEvery)
		checks = append(checks, metric.HealthCheck{Name: "postgres", Check: dbConn.PingContext})
	default:
		store = memory.NewRendezvousStore()
	}

	if cfg.TurnServer.Enabled {
		turnSrv, err := turn.Start(turn.ServerConfig{
			PublicIP: cfg.TurnServer.PublicIP,
			Port:     cfg.TurnServer.Port,
			Realm:    cfg.TurnServer.Realm,
			Secret:   cfg.CoturnServer.Secret,
		})
		if err != nil {
			slog.Error("start turn server", slog.Any(constant.Error, err))
			os.Exit(1)
		}
		defer turn.Stop(turnSrv)
	}

	wsConnRepo := memory.NewWSConnectionRepository()

	rendezvousUsecase := usecase.NewRendezvousUsecase(store, nil)

	rendezvousHandler := handlers.NewRendezvousHandler(rendezvousUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	watchHandler := handlers.NewWatchHandler(cfg, rendezvousUsecase, wsConnRepo)

	echoSrv := server.New(cfg, rendezvousHandler, iceHandler, watchHandler)

	metricsSrv := metric.NewServer(checks...)

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	slog.Info("HTTP server starting", slog.String("port", cfg.Port), slog.String("metric_port", cfg.MetricPort))

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer timeoutCancel()

	// watch-соединения захвачены у echo, Shutdown их не ждёт и не закрывает
	wsConnRepo.CloseAll()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}

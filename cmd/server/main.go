package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	router "github.com/dkeye/RoomRelay/internal/adapters/http"
	wsignal "github.com/dkeye/RoomRelay/internal/adapters/signal"
	"github.com/dkeye/RoomRelay/internal/app"
	"github.com/dkeye/RoomRelay/internal/config"
	"github.com/dkeye/RoomRelay/internal/store"
)

const shutdownTimeout = 5 * time.Second

var (
	flagConfig string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "roomrelay",
	Short:        "Websocket room relay server",
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	flags.Int("port", 8765, "listen port")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
}

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(v, flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("bad log level, keeping info")
	}

	st, err := store.New(cfg.Database.Store())
	if err != nil {
		log.Error().Err(err).Msg("store unavailable, rooms will be memory-only")
		st = store.Disabled{}
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	orch := app.NewOrchestrator(st, app.AllowAll{})
	reporter := &app.Reporter{Registry: orch.Registry, Rooms: orch.Rooms, Interval: cfg.StatusInterval}
	go reporter.Run(ctx)

	ctl := wsignal.NewSignalWSController(orch, wsignal.Options{
		ReadLimit:       cfg.ReadLimit,
		SendBuffer:      cfg.SendBuffer,
		PingPeriod:      cfg.PingPeriod,
		IdentifyTimeout: cfg.IdentifyTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		RateLimit:       cfg.RateLimit.Limit,
		RateInterval:    cfg.RateLimit.Interval,
	})

	r := router.SetupRouter(ctx, cfg, ctl, reporter)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("RoomRelay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	log.Info().Msg("Shutting down")
	orch.Registry.CancelAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// hijacked websocket connections are not tracked by Shutdown
	for orch.Registry.Count() > 0 && shutdownCtx.Err() == nil {
		time.Sleep(50 * time.Millisecond)
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

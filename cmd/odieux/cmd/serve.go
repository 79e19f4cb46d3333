package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	internalhttp "github.com/Rrogntudju/odieux/internal/http"
	"github.com/Rrogntudju/odieux/internal/observability"
	"github.com/Rrogntudju/odieux/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the command server",
	Long: `Start the HTTP command server.

The server exposes:
- POST /command, the JSON command API driving the player core
- GET /statique/*, a static file handler for a web client`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("static-dir", "./static", "Directory served at /statique/")
	serveCmd.Flags().String("catalog-url", "", "Base URL of the episode catalog")
	serveCmd.Flags().String("live-url", "", "Master playlist URL for live playback")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("server.static_dir", serveCmd.Flags().Lookup("static-dir"))
	mustBindPFlag("catalog.url", serveCmd.Flags().Lookup("catalog-url"))
	mustBindPFlag("catalog.live_url", serveCmd.Flags().Lookup("live-url"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	p := newPlayer(cfg, logger, viper.GetString("catalog.url"), viper.GetString("catalog.live_url"))

	serverConfig := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		StaticDir:       cfg.Server.StaticDir,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	server := internalhttp.NewServer(serverConfig, logger, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting odieux command server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

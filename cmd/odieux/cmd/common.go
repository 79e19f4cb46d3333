package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/Rrogntudju/odieux/internal/catalog"
	"github.com/Rrogntudju/odieux/internal/config"
	"github.com/Rrogntudju/odieux/internal/hls/pipeline"
	"github.com/Rrogntudju/odieux/internal/httpclient"
	"github.com/Rrogntudju/odieux/internal/player"
	"github.com/Rrogntudju/odieux/internal/streamsink"
)

// loadConfig unmarshals the already-initialized viper instance (config file
// + environment + flags, all bound during init()) into a config.Config.
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newPlayer wires the configured fetcher, pipeline, and streamsink into a
// player.Player, backed by a catalog.Client for episode lookup/resolution.
// catalogBaseURL and liveURL are operator-configured (see
// internal/catalog's package doc for why this boundary exists).
func newPlayer(cfg *config.Config, logger *slog.Logger, catalogBaseURL, liveURL string) *player.Player {
	fetcher := httpclient.New(httpclient.Config{
		Timeout:       cfg.Fetcher.Timeout,
		RetryAttempts: cfg.Fetcher.RetryAttempts,
		RetryDelay:    cfg.Fetcher.RetryDelay,
		UserAgent:     "odieux/1.0",
		Logger:        logger,
	})

	cat := &catalog.Client{
		Fetcher: httpclient.New(httpclient.Config{
			Timeout:   cfg.Fetcher.SimpleTimeout,
			UserAgent: "odieux/1.0",
			Logger:    logger,
		}),
		BaseURL: catalogBaseURL,
		LiveURL: liveURL,
	}

	sinks := &streamsink.Factory{
		Fetcher: fetcher,
		PipelineConfig: pipeline.Config{
			ChannelCapacity:  cfg.Pipeline.ChannelCapacity,
			LiveOrigins:      cfg.Pipeline.LiveOrigins,
			LiveSleepDivisor: cfg.Pipeline.LiveSleepDivisor,
			Logger:           logger,
		},
		ThrottleReserve: int64(cfg.Pipeline.ThrottleReserve),
		Devices:         streamsink.NullDeviceFactory{},
	}

	return player.New(cat, cat, sinks, cfg.Player.VolumeDivisor, logger)
}

// waitForInterrupt blocks until SIGINT or SIGTERM, logs it, and returns.
// play and live both run until interrupted this way rather than exiting
// once playback starts.
func waitForInterrupt(logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))
}

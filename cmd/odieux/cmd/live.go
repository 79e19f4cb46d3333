package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rrogntudju/odieux/internal/observability"
	"github.com/Rrogntudju/odieux/internal/player"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Start live playback",
	Long: `Start playing the configured live stream on the local sink,
blocking until interrupted (Ctrl-C). Equivalent to running odieux with no
subcommand.`,
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().String("catalog-url", "", "Base URL of the episode catalog")
	liveCmd.Flags().String("live-url", "", "Master playlist URL for live playback")
	mustBindPFlag("catalog.url", liveCmd.Flags().Lookup("catalog-url"))
	mustBindPFlag("catalog.live_url", liveCmd.Flags().Lookup("live-url"))
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	liveURL := viper.GetString("catalog.live_url")
	if liveURL == "" {
		return fmt.Errorf("live: no live URL configured (--live-url or ODIEUX_CATALOG_LIVE_URL)")
	}

	p := newPlayer(cfg, logger, viper.GetString("catalog.url"), liveURL)

	startCmd, err := startCommand(player.Episode{Titre: player.LiveTitle})
	if err != nil {
		return err
	}

	state := p.Execute(startCmd)
	if state.Player != player.StatePlaying {
		return fmt.Errorf("live: failed to start: %s", state.Message)
	}
	logger.Info("live playback started")

	waitForInterrupt(logger)
	p.Execute(stopCommand())
	return nil
}

// startCommand and stopCommand build player.Command values through its
// JSON wire shape, since Command's fields are only reachable that way
// (the same path the HTTP command endpoint uses).
func startCommand(ep player.Episode) (player.Command, error) {
	body, err := json.Marshal(map[string]player.Episode{"Start": ep})
	if err != nil {
		return player.Command{}, err
	}
	var c player.Command
	if err := c.UnmarshalJSON(body); err != nil {
		return player.Command{}, err
	}
	return c, nil
}

func stopCommand() player.Command {
	var c player.Command
	_ = c.UnmarshalJSON([]byte(`"Stop"`))
	return c
}

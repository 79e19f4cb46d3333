package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rrogntudju/odieux/internal/observability"
	"github.com/Rrogntudju/odieux/internal/player"
)

var playCmd = &cobra.Command{
	Use:   "play <program_id> <page> <episode_no>",
	Short: "Play one catalog episode",
	Long: `Resolve and play one episode from the catalog on the local sink,
blocking until interrupted (Ctrl-C). page is the 1-based catalog page
number; episode_no is the 0-based index of the episode within that page.`,
	Args: cobra.ExactArgs(3),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().String("catalog-url", "", "Base URL of the episode catalog")
	mustBindPFlag("catalog.url", playCmd.Flags().Lookup("catalog-url"))
}

func runPlay(cmd *cobra.Command, args []string) error {
	progID := args[0]
	page, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("play: invalid page %q: %w", args[1], err)
	}
	episodeNo, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("play: invalid episode_no %q: %w", args[2], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	p := newPlayer(cfg, logger, viper.GetString("catalog.url"), "")

	pageCmd, err := pageCommand(0, page, progID)
	if err != nil {
		return err
	}
	state := p.Execute(pageCmd)
	if episodeNo < 0 || episodeNo >= len(state.Episodes) {
		return fmt.Errorf("play: episode_no %d out of range (page has %d episodes)", episodeNo, len(state.Episodes))
	}

	startCmd, err := startCommand(state.Episodes[episodeNo])
	if err != nil {
		return err
	}
	state = p.Execute(startCmd)
	if state.Player != player.StatePlaying {
		return fmt.Errorf("play: failed to start: %s", state.Message)
	}
	logger.Info("playback started", slog.String("titre", state.EnLecture.Titre))

	waitForInterrupt(logger)
	p.Execute(stopCommand())
	return nil
}

func pageCommand(prog, page int, progID string) (player.Command, error) {
	body := fmt.Sprintf(`{"Page": {"prog": %d, "page": %d, "prog_id": %q}}`, prog, page, progID)
	var c player.Command
	if err := c.UnmarshalJSON([]byte(body)); err != nil {
		return player.Command{}, err
	}
	return c, nil
}

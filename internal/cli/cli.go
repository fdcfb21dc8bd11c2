// ============================================================================
// Ringmaster CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: cobra front end for running and inspecting competitions
//
// Command Structure:
//   ringmaster                     # Root command
//   ├── run                        # Play the competition
//   ├── check                      # Run the player health checks only
//   ├── show                       # Print progress from the state files
//   ├── forfeits                   # List games that ended by forfeit
//   ├── reset                      # Delete the saved state
//   ├── log                        # Dump the results log
//   ├── test-player                # Serve the built-in test engine on stdio
//   └── --config, -c               # Control file (default: competition.yaml)
//
// run Command:
//   1. Load the control file
//   2. Create the Ringmaster (recovers from snapshot + results log)
//   3. Start the metrics HTTP server and gRPC health server (if enabled)
//   4. Check players, then play until finished or interrupted
//   5. On SIGINT/SIGTERM: running games finish, a final snapshot is taken
//
// show, forfeits and log only read the state files, so they can be used
// while a competition is running.
//
// ============================================================================

package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/ringmaster/internal/board"
	"github.com/ChuLiYu/ringmaster/internal/config"
	"github.com/ChuLiYu/ringmaster/internal/gtp"
	"github.com/ChuLiYu/ringmaster/internal/logging"
	"github.com/ChuLiYu/ringmaster/internal/match"
	"github.com/ChuLiYu/ringmaster/internal/metrics"
	"github.com/ChuLiYu/ringmaster/internal/ringmaster"
	"github.com/ChuLiYu/ringmaster/internal/server"
)

var configFile string

// Engines are launched as subprocesses and records go to the local
// filesystem; tests swap these for in-process engines and memory.
var (
	newLauncher = func() gtp.Launcher { return gtp.SubprocessLauncher{} }
	newStore    = func() match.RecordStore { return match.NewAFSStore() }
)

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ringmaster",
		Short: "Ringmaster: plays Go engines against each other",
		Long: `Ringmaster runs competitions between GTP Go engines:
- each matchup plays a fixed (or unlimited) number of games
- game records are written as SGF
- an interrupted competition resumes where it stopped`,
		Version:       match.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "competition.yaml", "control file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildCheckCommand())
	rootCmd.AddCommand(buildShowCommand())
	rootCmd.AddCommand(buildForfeitsCommand())
	rootCmd.AddCommand(buildResetCommand())
	rootCmd.AddCommand(buildLogCommand())
	rootCmd.AddCommand(buildTestPlayerCommand())

	return rootCmd
}

// ============================================================================
// run
// ============================================================================

type runOptions struct {
	workers    int
	skipChecks bool
}

func buildRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start or resume the competition",
		Long:  "Play games until every matchup has reached its limit or the process is interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompetition(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 0, "games to play in parallel (overrides the control file)")
	cmd.Flags().BoolVar(&opts.skipChecks, "skip-checks", false, "do not check the players before starting")

	return cmd
}

func runCompetition(cmd *cobra.Command, opts runOptions) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Competition.Workers = opts.workers
	}
	logger := logging.NewLoggerWithWriter(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, cmd.ErrOrStderr())

	rc := cfg.ToRingmaster()
	rc.SkipChecks = opts.skipChecks

	reg := prometheus.NewRegistry()
	rm, err := ringmaster.New(rc, ringmaster.Deps{
		Launcher: newLauncher(),
		Store:    newStore(),
		Scorer:   board.AreaScorer{},
		Metrics:  metrics.NewCollector(reg),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open competition: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			logger.Info("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(ctx, cfg.Metrics.Port, reg); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	var status *server.Server
	if cfg.Status.Enabled {
		status = server.NewServer()
		go func() {
			logger.Info("Starting health server", "port", cfg.Status.Port)
			if err := status.ListenAndServe(cfg.Status.Port); err != nil {
				logger.Error("Health server error", "error", err)
			}
		}()
		defer status.Stop()
	}

	if err := rm.Start(ctx); err != nil {
		rm.Stop()
		return err
	}
	if status != nil {
		status.SetServing(true)
	}

	select {
	case <-rm.Done():
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping gracefully...")
	}
	if status != nil {
		status.SetServing(false)
	}
	rm.Stop()

	st := rm.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "%d games played", len(rm.Results()))
	if st.Finished {
		fmt.Fprintln(cmd.OutOrStdout(), ", competition finished")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), ", competition paused")
	}
	return rm.Err()
}

// ============================================================================
// check
// ============================================================================

func buildCheckCommand() *cobra.Command {
	var discardStderr bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that every player starts and accepts the game settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			rc := cfg.ToRingmaster()
			rc.CheckOptions.DiscardStderr = discardStderr

			logger := logging.NewLoggerWithWriter(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, cmd.ErrOrStderr())
			if err := ringmaster.CheckPlayers(cmd.Context(), rc, newLauncher(), logger); err != nil {
				var cf *match.CheckFailed
				if errors.As(err, &cf) {
					return fmt.Errorf("player check failed: %w", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "all %d players ok\n", countPlayers(rc))
			return nil
		},
	}

	cmd.Flags().BoolVar(&discardStderr, "discard-stderr", false, "send the players' stderr to the null device")

	return cmd
}

// countPlayers counts the players used by at least one matchup.
func countPlayers(rc ringmaster.Config) int {
	used := make(map[string]bool)
	for _, m := range rc.Matchups {
		used[m.Black] = true
		used[m.White] = true
	}
	return len(used)
}

// ============================================================================
// test-player
// ============================================================================

func buildTestPlayerCommand() *cobra.Command {
	var tp gtp.TestPlayerConfig

	cmd := &cobra.Command{
		Use:   "test-player",
		Short: "Serve the built-in test engine over GTP on stdin/stdout",
		Long:  "A deterministic engine for trying out control files: each colour plays up one column and then passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gtp.NewTestPlayer(tp).Serve(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&tp.Name, "name", "", "reply to the name command")
	cmd.Flags().StringVar(&tp.Version, "version", "", "reply to the version command")
	cmd.Flags().IntVar(&tp.BlackColumn, "black-column", 0, "column played by black, 0-based")
	cmd.Flags().IntVar(&tp.WhiteColumn, "white-column", 0, "column played by white, 0-based")
	cmd.Flags().DurationVar(&tp.MoveDelay, "move-delay", 0, "pause before each generated move")

	return cmd
}

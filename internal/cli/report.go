package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/ringmaster/internal/config"
	"github.com/ChuLiYu/ringmaster/internal/logging"
	"github.com/ChuLiYu/ringmaster/internal/ringmaster"
	"github.com/ChuLiYu/ringmaster/internal/storage/wal"
	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// ============================================================================
// show
// ============================================================================

func buildShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show competition progress",
		Long:  "Print per-matchup results from the saved state; safe while the competition is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReport()
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report, time.Now())
			return nil
		},
	}
}

func readReport() (*ringmaster.Report, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	report, err := ringmaster.ReadReport(cfg.ToRingmaster(), logging.Discard())
	if err != nil {
		return nil, fmt.Errorf("failed to read competition state: %w", err)
	}
	return report, nil
}

func printReport(w io.Writer, r *ringmaster.Report, now time.Time) {
	st := r.Status
	fmt.Fprintf(w, "Competition: %s\n", st.Name)
	if r.SavedAt.IsZero() {
		fmt.Fprintln(w, "Status saved: never")
	} else {
		fmt.Fprintf(w, "Status saved: %s\n", humanize.RelTime(r.SavedAt, now, "ago", "from now"))
	}
	fmt.Fprintf(w, "Games played: %s", humanize.Comma(int64(len(r.Results))))
	if st.GameErrors > 0 {
		fmt.Fprintf(w, " (%s failed)", humanize.Comma(int64(st.GameErrors)))
	}
	fmt.Fprintln(w)

	for _, ms := range st.Matchups {
		fmt.Fprintln(w)
		limit := "unlimited"
		if ms.Limit != nil {
			limit = humanize.Comma(int64(*ms.Limit))
		}
		fmt.Fprintf(w, "%s: %s (B) v %s (W), %s/%s games", ms.ID, ms.Black, ms.White,
			humanize.Comma(int64(ms.Fixed)), limit)
		if ms.Outstanding > 0 {
			fmt.Fprintf(w, ", %d in progress", ms.Outstanding)
		}
		fmt.Fprintln(w)

		played := ms.Fixed
		for _, code := range []string{ms.Black, ms.White} {
			wins := ms.Wins[code]
			fmt.Fprintf(w, "  %-12s %5d wins  %s\n", code, wins, percent(wins, played))
		}
		var extra []string
		if ms.Jigos > 0 {
			extra = append(extra, humanize.Comma(int64(ms.Jigos))+" jigo")
		}
		if ms.Forfeits > 0 {
			extra = append(extra, humanize.Comma(int64(ms.Forfeits))+" forfeit")
		}
		if ms.Voids > 0 {
			extra = append(extra, humanize.Comma(int64(ms.Voids))+" void")
		}
		if len(extra) > 0 {
			fmt.Fprintf(w, "  (%s)\n", strings.Join(extra, ", "))
		}
	}
}

func percent(n, of int) string {
	if of == 0 {
		return "-"
	}
	return humanize.FtoaWithDigits(100*float64(n)/float64(of), 1) + "%"
}

// ============================================================================
// forfeits
// ============================================================================

func buildForfeitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forfeits",
		Short: "List games that ended by forfeit",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReport()
			if err != nil {
				return err
			}
			var forfeits []types.GameRecord
			for _, rec := range report.Results {
				if rec.IsForfeit {
					forfeits = append(forfeits, rec)
				}
			}
			sort.Slice(forfeits, func(i, j int) bool { return forfeits[i].GameID < forfeits[j].GameID })

			w := cmd.OutOrStdout()
			if len(forfeits) == 0 {
				fmt.Fprintln(w, "no forfeits")
			}
			for _, rec := range forfeits {
				fmt.Fprintf(w, "%s: %s\n", rec.GameID, rec.Detail)
			}
			return nil
		},
	}
}

// ============================================================================
// reset
// ============================================================================

func buildResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the saved state so the competition starts again",
		Long:  "Delete the status snapshot and results logs. Game records are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := ringmaster.Reset(cfg.ToRingmaster()); err != nil {
				return fmt.Errorf("failed to reset: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state of %s deleted\n", cfg.Competition.Name)
			return nil
		},
	}
}

// ============================================================================
// log
// ============================================================================

func buildLogCommand() *cobra.Command {
	var statsOnly, archives, verify bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Dump the results log",
		Long:  "Print every event in the results log, a summary with --stats, or a checksum check with --verify. --archives includes rotated logs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			live := cfg.ToRingmaster().WALPath()
			paths := []string{live}
			if archives {
				old, err := filepath.Glob(live + ".*.gz")
				if err != nil {
					return err
				}
				sort.Strings(old)
				paths = append(old, live)
			}

			w := cmd.OutOrStdout()
			for _, p := range paths {
				if _, err := os.Stat(p); os.IsNotExist(err) {
					fmt.Fprintf(w, "%s: no log\n", filepath.Base(p))
					continue
				}
				if verify {
					if err := verifyLog(w, p); err != nil {
						return err
					}
					continue
				}
				if statsOnly {
					if err := printLogStats(w, p); err != nil {
						return err
					}
					continue
				}
				if err := wal.DumpWAL(p, w); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statsOnly, "stats", false, "print a summary instead of the events")
	cmd.Flags().BoolVar(&archives, "archives", false, "include rotated logs")
	cmd.Flags().BoolVar(&verify, "verify", false, "check framing, checksums and sequence numbers")

	return cmd
}

func printLogStats(w io.Writer, path string) error {
	stats, err := wal.GetWALStats(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(w, "%s: %s events", filepath.Base(path), humanize.Comma(int64(stats.TotalEvents)))
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, ", seq %d-%d, %d results, %d errors",
			stats.FirstSeq, stats.LastSeq,
			stats.EventTypes[wal.EventGameResult], stats.EventTypes[wal.EventGameError])
	}
	if stats.Torn {
		fmt.Fprint(w, ", torn final line")
	}
	fmt.Fprintln(w)
	return nil
}

// verifyLog fails on the first damaged log; a torn final line counts as
// damage here although recovery would truncate it.
func verifyLog(w io.Writer, path string) error {
	if err := wal.ValidateWAL(path); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	last, err := wal.GetLastEvent(path)
	switch {
	case errors.Is(err, wal.ErrEmptyWAL):
		fmt.Fprintf(w, "%s: ok, empty\n", filepath.Base(path))
	case err != nil:
		return fmt.Errorf("%s: %w", path, err)
	default:
		fmt.Fprintf(w, "%s: ok, last seq %d\n", filepath.Base(path), last.Seq)
	}
	return nil
}

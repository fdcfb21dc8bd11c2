// Command demo runs a small competition between in-process test engines to
// show crash recovery: interrupt "start" with Ctrl+C while games are in
// flight, then run "recover" to see the competition resume.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ChuLiYu/ringmaster/internal/board"
	"github.com/ChuLiYu/ringmaster/internal/gtp"
	"github.com/ChuLiYu/ringmaster/internal/logging"
	"github.com/ChuLiYu/ringmaster/internal/match"
	"github.com/ChuLiYu/ringmaster/internal/ringmaster"
	"github.com/ChuLiYu/ringmaster/internal/scheduler"
)

const stateDir = "demo-state"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/demo <start|recover|reset>")
		os.Exit(1)
	}
	mode := os.Args[1]

	cfg := demoConfig()
	if mode == "reset" {
		if err := ringmaster.Reset(cfg); err != nil {
			log.Fatalf("Failed to reset: %v", err)
		}
		fmt.Println("✓ Demo state deleted")
		return
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", stateDir, err)
	}

	rm, err := ringmaster.New(cfg, ringmaster.Deps{
		Launcher: slowLauncher(20 * time.Millisecond),
		Store:    match.NewAFSStore(),
		Scorer:   board.AreaScorer{},
		Logger:   logging.NewLogger(logging.ParseLevel(os.Getenv("LOG_LEVEL")), "text"),
	})
	if err != nil {
		log.Fatalf("Failed to open competition: %v", err)
	}

	if mode == "recover" {
		fmt.Println("\n📊 Status after recovery (before any new game):")
		printStatus(rm.Status())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rm.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	fmt.Printf("✓ Competition started (mode: %s)\n", mode)
	fmt.Printf("💡 Press Ctrl+C while games are in flight, then run 'recover'\n\n")

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n\nReceived shutdown signal, stopping gracefully...")
			rm.Stop()
			printStatus(rm.Status())
			return
		case <-rm.Done():
			rm.Stop()
			fmt.Println("\n✓ Competition finished")
			printStatus(rm.Status())
			return
		case <-ticker.C:
			st := rm.Status()
			fmt.Printf("📊 In-Flight=%d Played=%d\n", st.InFlight, played(st))
		}
	}
}

func demoConfig() ringmaster.Config {
	return ringmaster.Config{
		Name: "demo",
		Players: map[string]match.Player{
			"e-column": {Command: []string{"e-column"}},
			"c-column": {Command: []string{"c-column", "engine=c-column"}},
		},
		Matchups: []ringmaster.Matchup{
			{ID: "e-c", Black: "e-column", White: "c-column", BoardSize: 9, Komi: 7.5, MoveLimit: 200, NumberOfGames: scheduler.Limit(50)},
			{ID: "c-e", Black: "c-column", White: "e-column", BoardSize: 9, Komi: 7.5, MoveLimit: 200, NumberOfGames: scheduler.Limit(50)},
		},
		RecordDir:        filepath.Join(stateDir, "demo.games"),
		VoidRecordDir:    filepath.Join(stateDir, "demo.void"),
		StateDir:         stateDir,
		WorkerCount:      4,
		SnapshotInterval: 2 * time.Second,
	}
}

// slowLauncher serves the test engines with a delay on every genmove, so
// that games last long enough to be interrupted.
func slowLauncher(delay time.Duration) *gtp.EngineLauncher {
	l := gtp.NewEngineLauncher()
	l.RegisterEngine("", func(id string) *gtp.Engine {
		return gtp.NewTestPlayer(gtp.TestPlayerConfig{Name: id, MoveDelay: delay})
	})
	l.RegisterEngine("c-column", func(id string) *gtp.Engine {
		return gtp.NewTestPlayer(gtp.TestPlayerConfig{Name: id, BlackColumn: 2, WhiteColumn: 2, MoveDelay: delay})
	})
	return l
}

func played(st ringmaster.Status) int {
	n := 0
	for _, ms := range st.Matchups {
		n += ms.Fixed
	}
	return n
}

func printStatus(st ringmaster.Status) {
	for _, ms := range st.Matchups {
		fmt.Printf("  %-4s issued=%-3d fixed=%-3d outstanding=%-2d wins=%v\n",
			ms.ID, ms.Issued, ms.Fixed, ms.Outstanding, ms.Wins)
	}
}

// ============================================================================
// Ringmaster Metrics - Prometheus metrics
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: collect and expose competition metrics for Prometheus
//
// Metrics:
//
//   1. Counters:
//      - ringmaster_games_dispatched_total: games handed to workers
//      - ringmaster_games_completed_total{outcome}: finished games by kind
//        (decided, jigo, forfeit, void)
//      - ringmaster_games_failed_total: games aborted by an engine failure
//      - ringmaster_player_wins_total{player}: wins per player code
//
//   2. Histograms:
//      - ringmaster_game_duration_seconds: wall time per game
//      - ringmaster_game_moves: moves per game
//
//   3. Gauges:
//      - ringmaster_recovery_time_seconds: last snapshot + log replay time
//      - ringmaster_games_in_flight: games currently running
//
// Example queries:
//
//   # games per minute
//   rate(ringmaster_games_completed_total[1m])
//
//   # share of forfeits
//   rate(ringmaster_games_completed_total{outcome="forfeit"}[10m])
//     / rate(ringmaster_games_dispatched_total[10m])
//
// HTTP endpoint:
//   /metrics, scraped by Prometheus. Default port 9090.
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome kinds used as the "outcome" label.
const (
	OutcomeDecided = "decided"
	OutcomeJigo    = "jigo"
	OutcomeForfeit = "forfeit"
	OutcomeVoid    = "void"
)

// Collector holds the competition metrics.
type Collector struct {
	gamesDispatched prometheus.Counter
	gamesCompleted  *prometheus.CounterVec
	gamesFailed     prometheus.Counter
	playerWins      *prometheus.CounterVec

	gameDuration prometheus.Histogram
	gameMoves    prometheus.Histogram

	recoveryTime  prometheus.Gauge
	gamesInFlight prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		gamesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringmaster_games_dispatched_total",
			Help: "Total number of games handed to workers",
		}),
		gamesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringmaster_games_completed_total",
			Help: "Total number of games that produced a result, by outcome kind",
		}, []string{"outcome"}),
		gamesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ringmaster_games_failed_total",
			Help: "Total number of games aborted without a result",
		}),
		playerWins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ringmaster_player_wins_total",
			Help: "Total number of games won, by player code",
		}, []string{"player"}),
		gameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringmaster_game_duration_seconds",
			Help:    "Game wall time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		gameMoves: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringmaster_game_moves",
			Help:    "Number of moves played per game",
			Buckets: prometheus.LinearBuckets(0, 50, 10),
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringmaster_recovery_time_seconds",
			Help: "Time taken to restore competition state at startup in seconds",
		}),
		gamesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ringmaster_games_in_flight",
			Help: "Current number of games being played",
		}),
	}

	reg.MustRegister(
		c.gamesDispatched,
		c.gamesCompleted,
		c.gamesFailed,
		c.playerWins,
		c.gameDuration,
		c.gameMoves,
		c.recoveryTime,
		c.gamesInFlight,
	)
	return c
}

// RecordDispatch counts a game handed to a worker.
func (c *Collector) RecordDispatch() {
	c.gamesDispatched.Inc()
}

// RecordCompleted counts a finished game. winner is the winning player's
// code, or "" when there is none.
func (c *Collector) RecordCompleted(outcome, winner string, duration time.Duration, moves int) {
	c.gamesCompleted.WithLabelValues(outcome).Inc()
	if winner != "" {
		c.playerWins.WithLabelValues(winner).Inc()
	}
	c.gameDuration.Observe(duration.Seconds())
	c.gameMoves.Observe(float64(moves))
}

// RecordFailed counts an aborted game.
func (c *Collector) RecordFailed() {
	c.gamesFailed.Inc()
}

// SetRecoveryTime records how long startup recovery took.
func (c *Collector) SetRecoveryTime(seconds float64) {
	c.recoveryTime.Set(seconds)
}

// SetInFlight records the number of running games.
func (c *Collector) SetInFlight(n int) {
	c.gamesInFlight.Set(float64(n))
}

// NewServer returns an HTTP server exposing g on /metrics. A nil g means
// prometheus.DefaultGatherer.
func NewServer(port int, g prometheus.Gatherer) *http.Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StartServer serves /metrics on port until ctx is cancelled.
func StartServer(ctx context.Context, port int, g prometheus.Gatherer) error {
	srv := NewServer(port, g)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

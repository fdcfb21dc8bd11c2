package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func TestNewCollector(t *testing.T) {
	collector, reg := newTestCollector(t)

	assert.NotNil(t, collector.gamesDispatched, "gamesDispatched counter should be initialized")
	assert.NotNil(t, collector.gamesCompleted, "gamesCompleted counter should be initialized")
	assert.NotNil(t, collector.gamesFailed, "gamesFailed counter should be initialized")
	assert.NotNil(t, collector.gameDuration, "gameDuration histogram should be initialized")
	assert.NotNil(t, collector.recoveryTime, "recoveryTime gauge should be initialized")

	// Vectors only appear once a label value is used.
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestRecordDispatch(t *testing.T) {
	collector, _ := newTestCollector(t)
	for i := 0; i < 10; i++ {
		collector.RecordDispatch()
	}
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.gamesDispatched))
}

func TestRecordCompleted(t *testing.T) {
	collector, reg := newTestCollector(t)

	collector.RecordCompleted(OutcomeDecided, "gnugo", 2*time.Second, 120)
	collector.RecordCompleted(OutcomeForfeit, "fuego", time.Second, 3)
	collector.RecordCompleted(OutcomeJigo, "", time.Second, 200)
	collector.RecordCompleted(OutcomeDecided, "gnugo", time.Second, 90)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.gamesCompleted.WithLabelValues(OutcomeDecided)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.gamesCompleted.WithLabelValues(OutcomeForfeit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.playerWins.WithLabelValues("gnugo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.playerWins.WithLabelValues("fuego")))

	count, err := testutil.GatherAndCount(reg, "ringmaster_game_moves")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordFailed(t *testing.T) {
	collector, _ := newTestCollector(t)
	collector.RecordFailed()
	collector.RecordFailed()
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.gamesFailed))
}

func TestGauges(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.SetRecoveryTime(1.5)
	assert.Equal(t, 1.5, testutil.ToFloat64(collector.recoveryTime))

	collector.SetInFlight(4)
	collector.SetInFlight(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.gamesInFlight))
}

func TestConcurrentMetricUpdates(t *testing.T) {
	collector, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordDispatch()
				collector.RecordCompleted(OutcomeDecided, "p", time.Millisecond, 10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(collector.gamesDispatched))
	assert.Equal(t, 1000.0, testutil.ToFloat64(collector.playerWins.WithLabelValues("p")))
}

func TestCollectorIsolation(t *testing.T) {
	c1, _ := newTestCollector(t)
	c2, _ := newTestCollector(t)
	c1.RecordFailed()
	assert.Equal(t, 0.0, testutil.ToFloat64(c2.gamesFailed))
}

func TestMetricsEndpoint(t *testing.T) {
	collector, reg := newTestCollector(t)
	collector.RecordDispatch()

	srv := NewServer(0, reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ringmaster_games_dispatched_total 1"))
}

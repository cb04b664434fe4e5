package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expvar registration is process-global, so every subtest shares one
// updater.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.Run()
	t.Cleanup(su.Stop)

	su.RegisterMetric(NumActiveClients)

	readMetric := func(name string) float64 {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var data map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&data))
		value, _ := data[name].(float64)
		return value
	}

	waitForMetric := func(name string, expected float64) {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if readMetric(name) == expected {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("metric %s never reached %v", name, expected)
	}

	t.Run("incr and decr", func(t *testing.T) {
		su.Incr(NumActiveClients)
		su.Incr(NumActiveClients)
		su.Decr(NumActiveClients)
		waitForMetric(NumActiveClients, 1)
	})

	t.Run("unknown metric registers on first use", func(t *testing.T) {
		su.Incr("LateArrival")
		waitForMetric("LateArrival", 1)
	})

	t.Run("vars handler includes uptime", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var data map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&data))
		assert.Contains(t, data, "Uptime")
	})
}

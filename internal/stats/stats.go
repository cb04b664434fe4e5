package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

// Metric names registered by the chat server and orchestrator.
const (
	NumActiveClients  = "NumActiveClients"
	NumSubscriptions  = "NumSubscriptions"
	MessagesPersisted = "MessagesPersisted"
	EventsBroadcast   = "EventsBroadcast"
	BroadcastErrors   = "BroadcastErrors"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater serializes metric updates through a single goroutine so
// callers never block on expvar internals.
type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan metricsUpdateReq
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	delta int64
}

func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		updateChan: make(chan metricsUpdateReq, 512),
		done:       make(chan struct{}),
	}
	su.vars = expvar.NewMap("studyhall-stats")

	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	mux.Handle("GET /debug/vars", http.HandlerFunc(su.varsHandler))

	return su
}

func (su *StatsUpdater) varsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	data := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})

	json.NewEncoder(w).Encode(data)
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, expvar.NewInt(name))
}

func (su *StatsUpdater) Incr(name string) {
	su.updateChan <- metricsUpdateReq{name: name, delta: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updateChan <- metricsUpdateReq{name: name, delta: -1}
}

func (su *StatsUpdater) Run() {
	go func() {
		defer close(su.done)
		for req := range su.updateChan {
			metric, ok := su.vars.Get(req.name).(*expvar.Int)
			if !ok {
				// unregistered metric; register on first use
				v := expvar.NewInt(req.name)
				su.vars.Set(req.name, v)
				metric = v
			}
			metric.Add(req.delta)
		}
	}()
}

func (su *StatsUpdater) Stop() {
	close(su.updateChan)
	<-su.done
}

package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

const (
	NumActiveClients   = "NumActiveClients"
	NumActiveRooms     = "NumActiveRooms"
	NumMessages        = "NumMessages"
	NumNotifications   = "NumNotifications"
	NumPersistFailures = "NumPersistFailures"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
}

// StatsUpdater applies counter updates on a single goroutine and serves the
// current values as JSON.
type StatsUpdater struct {
	vars     *expvar.Map
	updates  chan counterDelta
	done     chan struct{}
	stopOnce sync.Once
}

type counterDelta struct {
	name  string
	delta int64
}

// NewStatsUpdater creates a new stats updater instance and mounts its
// handler on mux. The map is not published globally so several updaters can
// coexist in one process.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:    new(expvar.Map).Init(),
		updates: make(chan counterDelta, 512),
		done:    make(chan struct{}),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.serveVars))

	started := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(started).Milliseconds()
	}))

	return su
}

func (su *StatsUpdater) serveVars(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]json.RawMessage)
	su.vars.Do(func(kv expvar.KeyValue) {
		out[kv.Key] = json.RawMessage(kv.Value.String())
	})

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(out)
}

func (su *StatsUpdater) apply() {
	for {
		select {
		case u := <-su.updates:
			// Counters nobody registered are created on first use.
			su.vars.Add(u.name, u.delta)
		case <-su.done:
			return
		}
	}
}

func (su *StatsUpdater) send(name string, delta int64) {
	select {
	case <-su.done:
		return
	default:
	}

	select {
	case su.updates <- counterDelta{name: name, delta: delta}:
	case <-su.done:
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.send(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.send(name, -1)
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

// Stop ends the update loop. Updates sent afterwards are dropped.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() { close(su.done) })
}

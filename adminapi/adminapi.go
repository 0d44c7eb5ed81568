// Package adminapi is the small HTTP surface a streamrepd process exposes
// for operators: liveness, per-subscription state, and the counters from
// streamrep.Metrics. It is deliberately not the full routing stack a
// multi-tenant app would carry — one router, no auth, no templates — since
// a replication daemon has exactly one operator-facing concern: is it
// keeping up.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"time"

	"github.com/andreyvit/httpform"
	"github.com/uptrace/bunrouter"

	"github.com/andreyvit/streamrep/streamrep"
)

// SubscriptionStatus is one row of the /status response.
type SubscriptionStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Source supplies the live data adminapi reports; cmd/streamrepd
// implements it directly against its running subscriptions.
type Source interface {
	NumberOfEntries(ctx context.Context) (uint64, error)
	Subscriptions() []SubscriptionStatus
	Metrics() *streamrep.Metrics
	// LastPublishedAt reports the local wall-clock time of the most recent
	// write to the local stream, or ok=false when that isn't tracked (e.g.
	// an in-memory local stream) or nothing has been published yet.
	LastPublishedAt() (t time.Time, ok bool)
}

// Server is the admin HTTP handler. The zero value is not usable; build one
// with New.
type Server struct {
	router *bunrouter.Router
	source Source
}

// New builds a Server backed by source and registers its routes.
func New(source Source) *Server {
	s := &Server{router: bunrouter.New(), source: source}
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/metrics", s.handleMetrics)
	return s
}

// ServeHTTP makes Server an http.Handler, for http.ListenAndServe or a
// test server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, req bunrouter.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
	return nil
}

type statusResponse struct {
	NumberOfEntries uint64               `json:"number_of_entries"`
	Subscriptions   []SubscriptionStatus `json:"subscriptions"`
	LastPublishedAt *time.Time           `json:"last_published_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, req bunrouter.Request) error {
	n, err := s.source.NumberOfEntries(req.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return nil
	}
	resp := statusResponse{
		NumberOfEntries: n,
		Subscriptions:   s.source.Subscriptions(),
	}
	if t, ok := s.source.LastPublishedAt(); ok {
		resp.LastPublishedAt = &t
	}
	writeJSON(w, resp)
	return nil
}

// metricsQuery is bound from the query string via httpform, the same
// binder the routing layer uses for handler inputs.
type metricsQuery struct {
	Name string `form:"name"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, req bunrouter.Request) error {
	inVal := reflect.New(reflect.TypeOf(metricsQuery{}))
	if err := httpform.Default.DecodeVal(req.Request, req.Params(), inVal); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	q := inVal.Elem().Interface().(metricsQuery)

	m := s.source.Metrics()
	if m == nil {
		writeJSON(w, []streamrep.CounterSnapshot{})
		return nil
	}
	snap := m.Snapshot()
	if q.Name != "" {
		filtered := snap[:0]
		for _, c := range snap {
			if c.Name == q.Name {
				filtered = append(filtered, c)
			}
		}
		snap = filtered
	}
	writeJSON(w, snap)
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

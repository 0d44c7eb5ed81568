// Command streamrepd is a small daemon that replicates one remote entry
// stream into a local bbolt-backed copy and exposes an admin HTTP surface
// over it. It is an example wiring of the streamrep package, not a
// framework: a real deployment with more than one stream to replicate
// would run one of these per stream, or generalize main into a loop over a
// list of streams from config.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/exp/maps"

	"github.com/andreyvit/streamrep/adminapi"
	"github.com/andreyvit/streamrep/chunked"
	"github.com/andreyvit/streamrep/config"
	"github.com/andreyvit/streamrep/director"
	"github.com/andreyvit/streamrep/localstream"
	"github.com/andreyvit/streamrep/localstream/edbstream"
	"github.com/andreyvit/streamrep/monitoring"
	"github.com/andreyvit/streamrep/streamrep"
)

// Entry is the wire shape this particular daemon replicates. A real
// deployment defines its own type here; the rest of main is generic over
// it via streamrep's type parameter.
type Entry struct {
	Payload json.RawMessage `json:"payload"`
}

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(raw, &e)
	return e, err
}

func main() {
	configPath := flag.String("config", "streamrepd.json", "path to config JSON")
	secretsPath := flag.String("secrets", "", "path to plainsecrets file (optional)")
	keyringPath := flag.String("keyring", "", "path to plainsecrets keyring file (optional)")
	env := flag.String("env", "production", "environment name for secrets lookup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("** %v", err)
	}

	var secrets config.Secrets
	if *secretsPath != "" {
		secrets, err = config.LoadSecrets(*secretsPath, *keyringPath, *env)
		if err != nil {
			log.Fatalf("** %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	shutdownRequested := make(chan struct{})
	interceptShutdownSignals(func() { close(shutdownRequested) })

	local, closeLocal, err := openLocalStream(cfg)
	if err != nil {
		log.Fatalf("** %v", err)
	}
	defer closeLocal()

	metrics := streamrep.NewMetrics()
	notices := monitoring.NewRuntime(false)

	httpClient := &http.Client{}
	if token := secrets.BearerToken(cfg); token != "" {
		httpClient.Transport = bearerTransport{token: token, base: http.DefaultTransport}
	}

	remote, err := streamrep.New[Entry](ctx, cfg.RemoteURL, decodeEntry,
		streamrep.WithBackoff(cfg.ReconnectBackoff.Backoff()),
		streamrep.WithMetrics(metrics),
		streamrep.WithNotices(notices),
		streamrep.WithLogger(slog.Default()),
		streamrep.WithHTTPClient(&chunked.Client{HTTPClient: httpClient}),
	)
	if err != nil {
		log.Fatalf("** streamrep: %v", err)
	}

	replicator, err := streamrep.NewStreamReplicator[Entry](local, metrics)
	if err != nil {
		log.Fatalf("** streamrep: %v", err)
	}

	reg := newSubscriptionRegistry()

	dr := director.New()
	err = dr.Start(ctx, &director.Component{Name: "replicate", Critical: true, RestartDelay: 2 * time.Second}, func(ctx context.Context, quitf func(err error)) error {
		startIndex := local.NumberOfEntries()
		handle := remote.Subscribe(ctx, replicator.Sink(), startIndex, cfg.Checked, func() {
			quitf(nil)
		})
		reg.set("primary", handle)
		return nil
	})
	if err != nil {
		log.Fatalf("** director: %v", err)
	}

	if cfg.AdminListenAddr != "" {
		src := &adminSource{remote: remote, metrics: metrics, reg: reg, local: local}
		admin := &http.Server{Addr: cfg.AdminListenAddr, Handler: adminapi.New(src)}
		err = dr.Start(ctx, &director.Component{Name: "admin", RestartDelay: 2 * time.Second}, func(ctx context.Context, quitf func(err error)) error {
			go func() {
				err := admin.ListenAndServe()
				if err == http.ErrServerClosed {
					err = nil
				}
				quitf(err)
			}()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = admin.Shutdown(shutdownCtx)
			}()
			return nil
		})
		if err != nil {
			log.Fatalf("** director: %v", err)
		}
	}

	<-shutdownRequested
	gracefulShutdown(10*time.Second, func(shutdownCtx context.Context) error {
		// remote.Close fans out to every subscription attached to the
		// endpoint directly, ahead of and independent of cancel below —
		// ctx cancellation would eventually reach the same subscriptions
		// through the director's component contexts, but Close is the
		// synchronous, immediate shutdown path.
		remote.Close()
		cancel()
		done := make(chan struct{})
		go func() {
			dr.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-shutdownCtx.Done():
			return shutdownCtx.Err()
		}
	}, func() {
		os.Exit(1)
	})
}

// interceptShutdownSignals calls shutdown once on the first SIGINT/SIGTERM
// and restores default signal handling immediately after, so a second
// signal falls through to the OS default (kill) instead of being silently
// swallowed while a graceful shutdown is already in progress.
func interceptShutdownSignals(shutdown func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-c
		signal.Reset()
		log.Println("shutting down, interrupt again to force quit")
		shutdown()
	}()
}

// gracefulShutdown tries to do a graceful shutdown, but abandons the
// attempt and falls back to forceful shutdown after gracePeriod.
func gracefulShutdown(gracePeriod time.Duration, graceful func(ctx context.Context) error, forceful func()) {
	ctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()

	err := graceful(ctx)
	if err == context.DeadlineExceeded {
		log.Println("WARNING: graceful shutdown timed out")
		forceful()
	} else if err != nil {
		log.Fatalf("** ERROR: graceful shutdown failed: %v", err)
	}
}

// openLocalStream returns an edb-backed local stream when a DB path is
// configured, and an in-memory one otherwise (useful for smoke-testing a
// remote without committing to durability).
func openLocalStream(cfg *config.Config) (localstream.Stream[Entry], func(), error) {
	if cfg.LocalDBPath == "" {
		return localstream.NewMemory[Entry](), func() {}, nil
	}
	s, err := edbstream.Open[Entry](cfg.LocalDBPath, false)
	if err != nil {
		return nil, nil, fmt.Errorf("opening local stream: %w", err)
	}
	return s, func() { s.Close() }, nil
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// subscriptionRegistry tracks the live handles so the admin surface can
// report their state without the daemon threading a handle through every
// layer that might want to inspect it.
type subscriptionRegistry struct {
	mu      sync.Mutex
	handles map[string]*streamrep.SubscriberHandle
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{handles: make(map[string]*streamrep.SubscriberHandle)}
}

func (r *subscriptionRegistry) set(name string, h *streamrep.SubscriberHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[name] = h
}

// snapshot reports subscriptions in stable name order, so operators polling
// /status get consistent diffs instead of Go's randomized map order.
func (r *subscriptionRegistry) snapshot() []adminapi.SubscriptionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := maps.Keys(r.handles)
	sort.Strings(names)
	out := make([]adminapi.SubscriptionStatus, 0, len(names))
	for _, name := range names {
		out = append(out, adminapi.SubscriptionStatus{Name: name, State: r.handles[name].State()})
	}
	return out
}

type adminSource struct {
	remote  *streamrep.SubscribableRemoteStream[Entry]
	metrics *streamrep.Metrics
	reg     *subscriptionRegistry
	local   localstream.Stream[Entry]
}

func (s *adminSource) NumberOfEntries(ctx context.Context) (uint64, error) {
	return s.remote.NumberOfEntries(ctx)
}
func (s *adminSource) Subscriptions() []adminapi.SubscriptionStatus { return s.reg.snapshot() }
func (s *adminSource) Metrics() *streamrep.Metrics                  { return s.metrics }

// LastPublishedAt only has an answer when the local stream is durable
// (edbstream tracks it); an in-memory stream reports ok=false.
func (s *adminSource) LastPublishedAt() (time.Time, bool) {
	type tracker interface {
		LastPublishedAt() (time.Time, bool)
	}
	if t, ok := s.local.(tracker); ok {
		return t.LastPublishedAt()
	}
	return time.Time{}, false
}

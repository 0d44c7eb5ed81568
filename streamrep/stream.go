package streamrep

import (
	"context"
	"log/slog"

	"github.com/andreyvit/streamrep/backoff"
	"github.com/andreyvit/streamrep/chunked"
	"github.com/andreyvit/streamrep/localstream"
	"github.com/andreyvit/streamrep/logging"
	"github.com/andreyvit/streamrep/monitoring"
	"github.com/andreyvit/streamrep/recordstream"
	"github.com/andreyvit/streamrep/remoteendpoint"
	"github.com/andreyvit/streamrep/schemafp"
)

// Option configures a SubscribableRemoteStream at construction.
type Option func(*options)

type options struct {
	entryName     string
	namespaceName string
	backoffPolicy backoff.Backoff
	logger        *slog.Logger
	notices       *monitoring.Runtime
	metrics       *Metrics
	httpClient    *chunked.Client
}

// WithSchemaNames overrides the entry/namespace names used in the schema
// fingerprint; the defaults match the wire protocol's own defaults.
func WithSchemaNames(entryName, namespaceName string) Option {
	return func(o *options) { o.entryName, o.namespaceName = entryName, namespaceName }
}

// WithBackoff overrides the reconnection backoff policy. The default is
// backoff.GoodBackoff.
func WithBackoff(b backoff.Backoff) Option {
	return func(o *options) { o.backoffPolicy = b }
}

// WithLogger sets the logger the subscriber loop writes its
// malformed-chunk diagnostic to; state transitions are not logged. The default is logging.From(ctx) at Subscribe time,
// so a caller that stashes a request- or process-scoped *slog.Logger in its
// context gets it automatically without passing this option.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNotices attaches a monitoring.Runtime so the "constantly receiving
// malformed chunks" diagnostic is throttled instead of firing on every
// occurrence.
func WithNotices(rt *monitoring.Runtime) Option {
	return func(o *options) { o.notices = rt }
}

// WithMetrics attaches a *Metrics shared across every subscription created
// from this stream.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHTTPClient overrides the chunked transport client. The default
// creates a new *chunked.Client using http.DefaultClient.
func WithHTTPClient(c *chunked.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// SubscribableRemoteStream is the client-facing handle to a remote entry
// stream: it holds the verified endpoint and can spawn any number of
// independent subscriptions against it.
type SubscribableRemoteStream[T any] struct {
	endpoint    *remoteendpoint.Endpoint
	decodeEntry recordstream.EntryDecoder[T]
	opts        options
}

// New verifies the remote schema synchronously and fails construction on
// mismatch — a SubscribableRemoteStream that exists at all is guaranteed to
// have matched schemas at the moment it was built.
func New[T any](ctx context.Context, url string, decodeEntry recordstream.EntryDecoder[T], opts ...Option) (*SubscribableRemoteStream[T], error) {
	o := options{
		entryName:     schemafp.DefaultEntryName,
		namespaceName: schemafp.DefaultNamespaceName,
		backoffPolicy: backoff.GoodBackoff,
	}
	for _, apply := range opts {
		apply(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &chunked.Client{}
	}

	schema := schemafp.Reflect[T](o.entryName, o.namespaceName)
	endpoint, err := remoteendpoint.New(ctx, o.httpClient, url, schema)
	if err != nil {
		return nil, err
	}
	return &SubscribableRemoteStream[T]{endpoint: endpoint, decodeEntry: decodeEntry, opts: o}, nil
}

// NumberOfEntries reports the remote's current entry count.
func (s *SubscribableRemoteStream[T]) NumberOfEntries(ctx context.Context) (uint64, error) {
	return s.endpoint.GetEntryCount(ctx)
}

// Close cancels every subscription currently open against this stream's
// endpoint, in one shot. It is the endpoint-owner's shutdown path,
// distinct from an individual SubscriberHandle.Cancel/Close, which only
// ever affects that one subscription.
func (s *SubscribableRemoteStream[T]) Close() {
	s.endpoint.Close()
}

// Subscribe opens a checked-mode subscription: every entry record must
// carry its index, which is validated against the subscriber's expected
// next index. checked additionally controls the server-side `&checked`
// query flag, independent of this client-side decode mode.
func (s *SubscribableRemoteStream[T]) Subscribe(ctx context.Context, sub Subscriber[T], startIndex uint64, checked bool, onDone func()) *SubscriberHandle {
	decoder := recordstream.NewCheckedDecoder(startIndex, s.decodeEntry)
	return s.subscribe(ctx, decoder, checked, sub, onDone)
}

// SubscribeUnchecked opens an unchecked-mode subscription: entry records
// are handed to the subscriber as raw, undecoded lines.
func (s *SubscribableRemoteStream[T]) SubscribeUnchecked(ctx context.Context, sub Subscriber[T], startIndex uint64, checked bool, onDone func()) *SubscriberHandle {
	decoder := recordstream.NewUncheckedDecoder[T](startIndex)
	return s.subscribe(ctx, decoder, checked, sub, onDone)
}

func (s *SubscribableRemoteStream[T]) subscribe(ctx context.Context, decoder *recordstream.Decoder[T], checkedWire bool, sub Subscriber[T], onDone func()) *SubscriberHandle {
	logger := s.opts.logger
	if logger == nil {
		logger = logging.From(ctx)
	}
	runCtx, cancel := context.WithCancel(ctx)

	// Registering with the endpoint lets Close (an endpoint-owner action,
	// distinct from this subscriber cancelling itself) fan out to every
	// live subscriber attached to it. unregister keeps the endpoint's
	// registry from growing unbounded once this subscription ends on its
	// own, without Close ever firing.
	unregister := s.endpoint.OnShutdown(cancel)
	wrappedOnDone := func() {
		unregister()
		if onDone != nil {
			onDone()
		}
	}

	l := newLoop(s.endpoint, checkedWire, decoder, sub, s.opts.backoffPolicy, logger, s.opts.notices, s.opts.metrics, wrappedOnDone)
	go l.run(runCtx)
	return &SubscriberHandle{loop: l, cancelHard: cancel}
}

// StreamReplicator wires a SubscribableRemoteStream directly to a local
// stream, publishing every decoded event as that stream's exclusive
// writer. Destroying a StreamReplicator (via Close) never restores the
// local stream's write authority by itself; see ReplicatorSink.Close.
type StreamReplicator[T any] struct {
	sink *ReplicatorSink[T]
}

// NewStreamReplicator acquires exclusive write authority over local via
// BecomeFollowingStream and returns a replicator ready to be handed to
// Subscribe or SubscribeUnchecked.
func NewStreamReplicator[T any](local localstream.Stream[T], metrics *Metrics) (*StreamReplicator[T], error) {
	sink, err := NewReplicatorSink(local, metrics)
	if err != nil {
		return nil, err
	}
	return &StreamReplicator[T]{sink: sink}, nil
}

// Sink returns the underlying Subscriber, for passing to Subscribe.
func (r *StreamReplicator[T]) Sink() Subscriber[T] {
	return r.sink
}

// Close drops the publisher handle without restoring the local stream's
// authority.
func (r *StreamReplicator[T]) Close() {
	r.sink.Close()
}

package streamrep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/andreyvit/streamrep/backoff"
	"github.com/andreyvit/streamrep/monitoring"
	"github.com/andreyvit/streamrep/recordstream"
	"github.com/andreyvit/streamrep/remoteendpoint"
	"github.com/andreyvit/streamrep/waitcell"
)

// maxReconnectRate is a hard ceiling on reconnect attempts independent of
// whatever backoff.Backoff policy the caller configures — a policy with a
// zero or near-zero FixedDelay would otherwise busy-loop against a remote
// that fails instantly on every connect.
const maxReconnectRate = 20 // per second

var malformedChunkNotice = monitoring.DefineNotice(0x5713e2c1, "constantly_receiving_malformed_chunks", nil)

// state names mirror the specification's state machine exactly: Idle,
// Connecting, Streaming, Reconnecting, Terminating, Done.
type state int

const (
	stateIdle state = iota
	stateConnecting
	stateStreaming
	stateReconnecting
	stateTerminating
	stateDone
)

// loop is the background worker behind one subscription. It owns the
// framer, the decoder, and the subscription-id cell, and is driven from
// exactly one goroutine.
type loop[T any] struct {
	endpoint    *remoteendpoint.Endpoint
	checkedWire bool
	decoder     *recordstream.Decoder[T]
	subscriber  Subscriber[T]

	framer recordstream.Framer

	subID              *waitcell.Cell[string]
	terminateRequested atomic.Bool
	backoffPolicy      backoff.Backoff
	reconnectLimiter   *rate.Limiter
	failedAttempts     int
	logger             *slog.Logger
	notices            *monitoring.Runtime
	metrics            *Metrics
	current            atomic.Int32

	onDoneOnce sync.Once
	onDone     func()
	doneCh     chan struct{}
}

func newLoop[T any](endpoint *remoteendpoint.Endpoint, checkedWire bool, decoder *recordstream.Decoder[T], subscriber Subscriber[T], backoffPolicy backoff.Backoff, logger *slog.Logger, notices *monitoring.Runtime, metrics *Metrics, onDone func()) *loop[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &loop[T]{
		endpoint:         endpoint,
		checkedWire:      checkedWire,
		decoder:          decoder,
		subscriber:       subscriber,
		subID:            waitcell.New[string](),
		backoffPolicy:    backoffPolicy,
		reconnectLimiter: rate.NewLimiter(rate.Limit(maxReconnectRate), 1),
		logger:           logger,
		notices:          notices,
		metrics:          metrics,
		onDone:           onDone,
		doneCh:           make(chan struct{}),
	}
}

// requestExternalCancel implements the handle-drop half of the cancellation
// handshake described in the concurrency model: it blocks until either the
// worker has already finished, a prior terminate was issued, or a
// subscription id becomes known — then fires the best-effort terminate
// call. It does not wait for the worker to actually exit; callers that need
// that join on doneCh separately.
func (l *loop[T]) requestExternalCancel(ctx context.Context) {
	id, done, _ := l.subID.WaitUntilOrDone(ctx, func(v string) bool {
		return l.terminateRequested.Load() || v != ""
	})
	if done || l.terminateRequested.Load() {
		return
	}
	if id == "" {
		return
	}
	l.terminateRequested.Store(true)
	l.endpoint.Terminate(context.Background(), id)
}

// State reports the loop's current position in the Idle/Connecting/
// Streaming/Reconnecting/Terminating/Done state machine, for tests and
// status surfaces.
func (l *loop[T]) State() state {
	return state(l.current.Load())
}

func (l *loop[T]) setState(st state) {
	l.current.Store(int32(st))
}

func (l *loop[T]) run(ctx context.Context) {
	defer l.finish()

	st := stateConnecting
	l.setState(st)
runLoop:
	for {
		if l.terminateRequested.Load() {
			if l.subscriber.OnTerminateRequested() != Terminate {
				// A real Subscriber never asks to wait; a custom one
				// might, in which case we keep streaming and ask again
				// on the next pass.
			} else {
				st = stateTerminating
				l.setState(st)
				break
			}
		}
		if ctx.Err() != nil {
			st = stateTerminating
			l.setState(st)
			break
		}

		switch st {
		case stateConnecting:
			l.subID.Clear()
			l.framer.Reset()

			err := l.connectAndStream(ctx)
			if errors.Is(err, SubscriberEnded) {
				st = stateTerminating
				l.setState(st)
				break runLoop
			}
			// Both a clean EOF (err == nil) and a genuine transport or
			// protocol failure resume at the same expected index after a
			// backoff delay; only a subscriber-signaled Done skips the
			// reconnect entirely.
			l.failedAttempts++
			if err != nil && l.metrics != nil {
				l.metrics.Reconnects.Inc(MetricLabels{})
			}
			st = stateReconnecting
			l.setState(st)

		case stateReconnecting:
			delay := l.backoffPolicy.DelayAfter(l.failedAttempts)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					st = stateTerminating
					l.setState(st)
					continue
				}
			}
			if err := l.reconnectLimiter.Wait(ctx); err != nil {
				st = stateTerminating
				l.setState(st)
				continue
			}
			st = stateConnecting
			l.setState(st)
		}
	}
}

// connectAndStream performs one full connection attempt: schema check
// followed by the long-lived chunked GET. A nil return means the remote
// closed the stream with no error and no sink signal.
func (l *loop[T]) connectAndStream(ctx context.Context) error {
	if err := l.endpoint.CheckSchema(ctx); err != nil {
		return err
	}
	l.failedAttempts = 0
	l.setState(stateStreaming)

	url := l.endpoint.BuildSubscribeURL(l.decoder.ExpectedIndex(), l.checkedWire)
	onHeader := func(key, value string) {
		if key == "X-Current-Stream-Subscription-Id" {
			l.subID.Set(value)
		}
	}
	onChunk := func(chunk []byte) error {
		if l.terminateRequested.Load() {
			return nil
		}
		var chunkErr error
		l.framer.Feed(chunk, func(record []byte) {
			if chunkErr != nil {
				return
			}
			more, err := l.decoder.Decode(record, subscriberSink[T]{l.subscriber})
			if err != nil {
				chunkErr = MalformedChunk.Wrap(err)
				if l.decoder.ConsecutiveMalformed() == 3 {
					l.emitMalformedDiagnostic(url)
				}
				if l.metrics != nil {
					l.metrics.MalformedChunks.Inc(MetricLabels{})
				}
				return
			}
			if !more {
				chunkErr = SubscriberEnded.Wrap(errSubscriberDone)
			}
		})
		return chunkErr
	}

	err := l.endpoint.ChunkedGET(ctx, url, onHeader, onChunk)
	l.subID.Clear()
	return err
}

func (l *loop[T]) emitMalformedDiagnostic(url string) {
	if l.notices == nil || l.notices.AllowNotice(malformedChunkNotice) {
		l.logger.Warn("constantly receiving malformed chunks", "url", url)
	}
}

func (l *loop[T]) finish() {
	l.setState(stateDone)
	l.subID.MarkDone()
	l.onDoneOnce.Do(func() {
		close(l.doneCh)
		if l.onDone != nil {
			l.onDone()
		}
	})
}

var errSubscriberDone = errors.New("streamrep: subscriber returned Done")

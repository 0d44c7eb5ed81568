package streamrep

import "context"

// loopController is the non-generic surface of *loop[T] that
// SubscriberHandle needs, so the handle itself does not have to carry the
// entry type parameter.
type loopController interface {
	requestExternalCancel(ctx context.Context)
	State() state
	done() <-chan struct{}
}

func (l *loop[T]) done() <-chan struct{} { return l.doneCh }

// SubscriberHandle is an owned scope over one subscription. Its Close
// implements the two cancellation paths described in the concurrency
// model: it announces cancellation cooperatively (waiting for the
// subscription id if necessary, then firing the terminate call) and joins
// the background worker. At most one handle exists per subscription — it is
// returned once, by Subscribe/SubscribeUnchecked, and not meant to be
// shared.
type SubscriberHandle struct {
	loop       loopController
	cancelHard context.CancelFunc
}

// Cancel announces external cancellation without waiting for the worker to
// exit. It is idempotent and safe to call from any goroutine. Most callers
// should use Close instead; Cancel is exposed for callers that want to
// signal many subscriptions before joining any of them.
func (h *SubscriberHandle) Cancel(ctx context.Context) {
	h.loop.requestExternalCancel(ctx)
}

// Wait blocks until the worker has fully stopped and the on_done callback,
// if any, has fired.
func (h *SubscriberHandle) Wait() {
	<-h.loop.done()
}

// Close cancels the subscription and waits for the worker to stop. If ctx
// is cancelled before a subscription id is ever observed, Close gives up on
// the graceful terminate call and forcibly tears down the underlying
// connection instead of hanging forever.
func (h *SubscriberHandle) Close(ctx context.Context) {
	h.Cancel(ctx)
	select {
	case <-h.loop.done():
	case <-ctx.Done():
		h.cancelHard()
		<-h.loop.done()
	}
}

// State reports the subscription's current position in its state machine,
// for tests and status surfaces.
func (h *SubscriberHandle) State() string {
	switch h.loop.State() {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case stateReconnecting:
		return "reconnecting"
	case stateTerminating:
		return "terminating"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Package streamrep implements a client for a remote, chunked,
// monotonically indexed append-only log: it subscribes over HTTP,
// reconstructs entries from the chunked response, and republishes them into
// a local stream as that stream's exclusive writer.
package streamrep

import (
	"net/http"

	"github.com/andreyvit/streamrep/httperrors"
	"github.com/andreyvit/streamrep/recordstream"
)

// EntryResponse is a subscriber's verdict after handling one decoded event.
type EntryResponse int

const (
	// More tells the loop to keep streaming.
	More EntryResponse = iota
	// Done tells the loop the subscriber is finished; this is translated
	// into the internal SubscriberEnded condition, which unwinds the
	// in-flight chunked GET and lets the loop exit cleanly.
	Done
)

// TerminationResponse is a subscriber's verdict when asked whether the loop
// may terminate immediately after an external cancellation request.
type TerminationResponse int

const (
	// Terminate tells the loop it is safe to stop now.
	Terminate TerminationResponse = iota
	// Wait tells the loop to keep streaming a while longer before it
	// checks again. No subscriber in this package ever returns Wait; the
	// option exists for callers implementing their own Subscriber.
	Wait
)

// Subscriber is the callback contract driven by a SubscriberLoop. Each
// decoded wire event reaches exactly one of OnEntry, OnRawLine, OnHead.
type Subscriber[T any] interface {
	OnEntry(entry T, at recordstream.IndexedTimestamp) EntryResponse
	OnRawLine(raw []byte, index uint64) EntryResponse
	OnHead(us recordstream.Microseconds) EntryResponse
	// OnTerminateRequested is polled on every pass of the connect/reconnect
	// cycle after an external cancellation has been requested, until it
	// returns Terminate.
	OnTerminateRequested() TerminationResponse
}

// subscriberSink adapts a Subscriber[T] to recordstream.Sink[T], turning
// the More/Done vocabulary into the bool the decoder expects.
type subscriberSink[T any] struct {
	sub Subscriber[T]
}

func (s subscriberSink[T]) Entry(entry T, at recordstream.IndexedTimestamp) bool {
	return s.sub.OnEntry(entry, at) == More
}
func (s subscriberSink[T]) RawLine(raw []byte, index uint64) bool {
	return s.sub.OnRawLine(raw, index) == More
}
func (s subscriberSink[T]) Head(us recordstream.Microseconds) bool {
	return s.sub.OnHead(us) == More
}

var (
	// SubscriberEnded marks the internal signal that a subscriber returned
	// Done; it unwinds the chunked GET but is not a failure.
	SubscriberEnded = httperrors.Define(http.StatusOK, "subscriber_ended")
	// SubscriberCancelled marks the internal signal used to unwind the
	// chunked GET after external cancellation.
	SubscriberCancelled = httperrors.Define(http.StatusOK, "subscriber_cancelled")
	// MalformedChunk wraps recordstream.ErrMalformedChunk with an HTTP-style
	// code so it composes with the rest of the error kinds via errors.Is.
	MalformedChunk = httperrors.Define(http.StatusUnprocessableEntity, "malformed_chunk")
)

package streamrep

import (
	"github.com/andreyvit/streamrep/localstream"
	"github.com/andreyvit/streamrep/recordstream"
)

// ReplicatorSink is the pre-built Subscriber returned by StreamReplicator:
// it republishes every decoded event into a local stream via the exclusive
// PublisherHandle it acquires at construction. It never filters and never
// asks the loop to wait before terminating.
type ReplicatorSink[T any] struct {
	stream    localstream.Stream[T]
	publisher localstream.Publisher[T]
	metrics   *Metrics
}

// NewReplicatorSink calls stream.BecomeFollowingStream to obtain the
// exclusive publisher, matching the source's construction order: the
// publisher handle is acquired once, eagerly, not lazily on first entry.
func NewReplicatorSink[T any](stream localstream.Stream[T], metrics *Metrics) (*ReplicatorSink[T], error) {
	pub, err := stream.BecomeFollowingStream()
	if err != nil {
		return nil, err
	}
	return &ReplicatorSink[T]{stream: stream, publisher: pub, metrics: metrics}, nil
}

func (s *ReplicatorSink[T]) OnEntry(entry T, at recordstream.IndexedTimestamp) EntryResponse {
	s.publisher.Publish(entry, at.US)
	if s.metrics != nil {
		s.metrics.EntriesPublished.Inc(MetricLabels{})
	}
	return More
}

func (s *ReplicatorSink[T]) OnRawLine(raw []byte, index uint64) EntryResponse {
	s.publisher.PublishUnsafe(raw)
	if s.metrics != nil {
		s.metrics.EntriesPublished.Inc(MetricLabels{})
	}
	return More
}

func (s *ReplicatorSink[T]) OnHead(us recordstream.Microseconds) EntryResponse {
	s.publisher.UpdateHead(us)
	if s.metrics != nil {
		s.metrics.HeadUpdates.Inc(MetricLabels{})
	}
	return More
}

func (s *ReplicatorSink[T]) OnTerminateRequested() TerminationResponse {
	return Terminate
}

// Close drops the publisher handle. Crucially, it does NOT call
// stream.BecomeAuthoritative(): reacquiring write authority over the local
// stream is an explicit action the surrounding application must take, never
// an automatic side effect of tearing down a replicator. Destroying a
// StreamReplicator must never suddenly flip the local stream back to
// accepting application writes behind the application's back.
func (s *ReplicatorSink[T]) Close() {
	s.publisher = nil
}

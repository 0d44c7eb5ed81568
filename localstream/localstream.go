// Package localstream defines the contract a replicator publishes into —
// the "local stream" the specification treats as an external collaborator —
// plus an in-memory reference implementation.
package localstream

import (
	"sync"

	"github.com/andreyvit/streamrep/recordstream"
)

// Publisher is the exclusive capability to append to a local stream. It
// exists only while the stream is in "following" mode, and must be
// released before the stream can reacquire write authority.
type Publisher[T any] interface {
	// Publish appends entry at timestamp us. The caller (the
	// ReplicatorSink) guarantees indices arrive in strictly increasing
	// order and timestamps are non-decreasing; a Publisher implementation
	// is not required to re-validate this.
	Publish(entry T, us recordstream.Microseconds)
	// PublishUnsafe appends a raw, undecoded log line — used in unchecked
	// mode, where the sink never parses the entry itself.
	PublishUnsafe(raw []byte)
	// UpdateHead advances the stream's logical clock without appending an
	// entry.
	UpdateHead(us recordstream.Microseconds)
}

// Stream is the local stream itself: a store that can hand out exclusive
// write authority and take it back.
type Stream[T any] interface {
	// BecomeFollowingStream puts the stream into following mode and
	// returns the exclusive Publisher for it. It is an error to call this
	// while the stream is already following.
	BecomeFollowingStream() (Publisher[T], error)
	// BecomeAuthoritative takes write authority back from any replicator.
	// The replicator itself never calls this — see the doc on
	// ReplicatorSink.Close in the streamrep package.
	BecomeAuthoritative()
	// NumberOfEntries reports how many entries have been published so far.
	NumberOfEntries() uint64
}

// Memory is an in-memory Stream[T], useful for tests and for small
// deployments that do not need durability.
type Memory[T any] struct {
	mu         sync.RWMutex
	following  bool
	entries    []T
	rawEntries [][]byte
	head       recordstream.Microseconds
}

// NewMemory returns an empty, authoritative in-memory stream.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{}
}

func (m *Memory[T]) BecomeFollowingStream() (Publisher[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.following {
		return nil, ErrAlreadyFollowing
	}
	m.following = true
	return &memoryPublisher[T]{m: m}, nil
}

func (m *Memory[T]) BecomeAuthoritative() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.following = false
}

func (m *Memory[T]) NumberOfEntries() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.entries) + len(m.rawEntries))
}

// Snapshot returns a copy of the entries published through Publish, and the
// current head, for assertions in tests. Raw lines from PublishUnsafe are
// not included.
func (m *Memory[T]) Snapshot() (entries []T, head recordstream.Microseconds) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, len(m.entries))
	copy(out, m.entries)
	return out, m.head
}

type memoryPublisher[T any] struct {
	m *Memory[T]
}

func (p *memoryPublisher[T]) Publish(entry T, us recordstream.Microseconds) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.m.entries = append(p.m.entries, entry)
	p.m.head = us
}

func (p *memoryPublisher[T]) PublishUnsafe(raw []byte) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.m.rawEntries = append(p.m.rawEntries, append([]byte(nil), raw...))
}

func (p *memoryPublisher[T]) UpdateHead(us recordstream.Microseconds) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.m.head = us
}

// Package edbstream is a durable localstream.Stream backed by
// github.com/andreyvit/edb (bbolt underneath), following the same
// declarative-schema idiom the teacher app uses for its own tables:
// a *edb.Schema built at init time via edb.AddTable/edb.AddIndex, opened
// once with edb.Open, and read/written inside edb.Tx transactions.
package edbstream

import (
	"log/slog"
	"time"

	"github.com/andreyvit/edb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/streamrep/flake"
	"github.com/andreyvit/streamrep/jsonext"
	"github.com/andreyvit/streamrep/localstream"
	"github.com/andreyvit/streamrep/recordstream"
)

// entryRow is one published entry. ID is the table's primary key: a flake
// ID minted at publish time, so rows sort in publish order even though
// lookups go through the byIndex unique index.
type entryRow struct {
	ID      flake.ID `msgpack:"id"`
	Index   uint64   `msgpack:"index"`
	US      uint64   `msgpack:"us"`
	Payload []byte   `msgpack:"payload"` // msgpack-encoded T, or the raw unchecked line
	Raw     bool     `msgpack:"raw,omitempty"`
}

func (r *entryRow) FlakeID() flake.ID { return r.ID }

// headRow is a singleton row (ID is always headSingletonID) tracking the
// stream's logical clock. PublishedAt is the local wall-clock time of the
// last write, kept separately from US (the remote's own logical clock) so
// an operator can tell a stalled subscription from a genuinely idle remote.
type headRow struct {
	ID          flake.ID        `msgpack:"id"`
	US          uint64          `msgpack:"us"`
	PublishedAt jsonext.OptTime `msgpack:"published_at"`
}

func (r *headRow) FlakeID() flake.ID { return r.ID }

const headSingletonID = flake.ID(1)

var (
	schema = &edb.Schema{Name: "streamrep"}

	entriesByIndex = edb.AddIndex[uint64]("by_index").Unique()

	entriesTable = edb.AddTable(schema, "entries", 1,
		func(row *entryRow, ib *edb.IndexBuilder) {
			ib.Add(entriesByIndex, row.Index)
		},
		func(tx *edb.Tx, row *entryRow, oldVer uint64) {},
		[]*edb.Index{entriesByIndex},
	)

	headByID = edb.AddIndex[flake.ID]("by_id").Unique()

	headTable = edb.AddTable(schema, "head", 1,
		func(row *headRow, ib *edb.IndexBuilder) {
			ib.Add(headByID, row.ID)
		},
		func(tx *edb.Tx, row *headRow, oldVer uint64) {},
		[]*edb.Index{headByID},
	)
)

// Stream is an edb-backed localstream.Stream[T]. Entries are msgpack-encoded
// via T's own marshaling (or stored raw, in unchecked mode) and persisted
// one bbolt row per entry, indexed by their stream index for resumption
// after a restart.
type Stream[T any] struct {
	db        *edb.DB
	gen       *flake.Gen
	following bool
}

// Open opens (creating if necessary) a bbolt-backed stream at path.
func Open[T any](path string, verbose bool) (*Stream[T], error) {
	db, err := edb.Open(path, schema, edb.Options{
		Logf:    func(format string, args ...any) {},
		Verbose: verbose,
	})
	if err != nil {
		return nil, err
	}
	return &Stream[T]{db: db, gen: flake.NewGen(0, 0)}, nil
}

func (s *Stream[T]) Close() error {
	s.db.Close()
	return nil
}

func (s *Stream[T]) BecomeFollowingStream() (localstream.Publisher[T], error) {
	if s.following {
		return nil, ErrAlreadyFollowing
	}
	s.following = true
	nextIndex, ok := s.HighestIndex()
	if ok {
		nextIndex++
	}
	return &publisher[T]{s: s, nextIndex: nextIndex}, nil
}

func (s *Stream[T]) BecomeAuthoritative() {
	s.following = false
}

func (s *Stream[T]) NumberOfEntries() uint64 {
	var n uint64
	_ = s.db.Tx(false, func(tx *edb.Tx) error {
		for c := edb.FullIndexScan[entryRow](tx, entriesByIndex); c.Next(); {
			n++
		}
		return nil
	})
	return n
}

// EntriesFrom replays persisted entries starting at index (inclusive),
// decoding each payload via decode. It is how a process resumes a
// subscription across a restart: read the highest persisted index, then
// Subscribe with startIndex = that + 1.
func (s *Stream[T]) EntriesFrom(index uint64, decode func(payload []byte) (T, error)) ([]T, error) {
	var out []T
	err := s.db.Tx(false, func(tx *edb.Tx) error {
		c := edb.IndexScan[entryRow](tx, entriesByIndex, edb.FullScan())
		for c.Next() {
			row := c.Row()
			if row.Index < index || row.Raw {
				continue
			}
			v, err := decode(row.Payload)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// LastPublishedAt reports the local wall-clock time of the most recent
// Publish, PublishUnsafe, or UpdateHead call, or ok=false if the stream has
// never been written to.
func (s *Stream[T]) LastPublishedAt() (t time.Time, ok bool) {
	_ = s.db.Tx(false, func(tx *edb.Tx) error {
		row := edb.Lookup[headRow](tx, headByID, headSingletonID)
		if row != nil && !row.PublishedAt.IsZero() {
			t, ok = row.PublishedAt.Value(), true
		}
		return nil
	})
	return t, ok
}

// HighestIndex reports the highest persisted entry index, or ok=false if
// the stream is empty.
func (s *Stream[T]) HighestIndex() (index uint64, ok bool) {
	_ = s.db.Tx(false, func(tx *edb.Tx) error {
		for c := edb.FullIndexScan[entryRow](tx, entriesByIndex); c.Next(); {
			row := c.Row()
			if !ok || row.Index > index {
				index, ok = row.Index, true
			}
		}
		return nil
	})
	return index, ok
}

// publisher tracks the next index to assign locally; the wire protocol's
// own index validation (in recordstream.Decoder) guarantees Publish calls
// arrive in strictly increasing remote order, so a simple local counter
// seeded from the highest persisted row is enough to keep it aligned
// across restarts.
type publisher[T any] struct {
	s         *Stream[T]
	nextIndex uint64
}

func (p *publisher[T]) Publish(entry T, us recordstream.Microseconds) {
	payload, err := msgpack.Marshal(entry)
	if err != nil {
		// Publish has no error return (see the Publisher interface), so a
		// marshal failure here would otherwise drop the entry with no trace
		// anywhere. Logging is the only signal an operator gets.
		slog.Default().Error("edbstream: dropping entry, marshal failed", "index", p.nextIndex, "err", err)
		return
	}
	index := p.nextIndex
	p.nextIndex++
	_ = p.s.db.Tx(true, func(tx *edb.Tx) error {
		row := &entryRow{ID: p.s.gen.New(), Index: index, US: uint64(us), Payload: payload}
		edb.Put(tx, row)
		edb.Put(tx, &headRow{ID: headSingletonID, US: uint64(us), PublishedAt: jsonext.OptTime(time.Now())})
		return nil
	})
}

func (p *publisher[T]) PublishUnsafe(raw []byte) {
	index := p.nextIndex
	p.nextIndex++
	_ = p.s.db.Tx(true, func(tx *edb.Tx) error {
		row := &entryRow{ID: p.s.gen.New(), Index: index, Payload: append([]byte(nil), raw...), Raw: true}
		edb.Put(tx, row)
		// PublishUnsafe carries no timestamp of its own (unchecked mode never
		// parses the entry), so the previous US is preserved; only
		// PublishedAt advances, which is what LastPublishedAt reports.
		var us uint64
		if head := edb.Lookup[headRow](tx, headByID, headSingletonID); head != nil {
			us = head.US
		}
		edb.Put(tx, &headRow{ID: headSingletonID, US: us, PublishedAt: jsonext.OptTime(time.Now())})
		return nil
	})
}

func (p *publisher[T]) UpdateHead(us recordstream.Microseconds) {
	_ = p.s.db.Tx(true, func(tx *edb.Tx) error {
		edb.Put(tx, &headRow{ID: headSingletonID, US: uint64(us), PublishedAt: jsonext.OptTime(time.Now())})
		return nil
	})
}

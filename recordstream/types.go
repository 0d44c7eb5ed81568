// Package recordstream holds the wire-level data model for a replicated
// entry stream: indexed timestamps, head updates, and the framed records
// that carry them.
package recordstream

import "fmt"

// Microseconds is a Unix-epoch timestamp in microseconds, as sent by the
// remote log.
type Microseconds uint64

// IndexedTimestamp pairs a strictly monotonic zero-based index with a
// non-decreasing timestamp.
type IndexedTimestamp struct {
	Index uint64
	US    Microseconds
}

func (idxts IndexedTimestamp) String() string {
	return fmt.Sprintf("(%d, %dus)", idxts.Index, idxts.US)
}

// OptionalIndexedTimestamp is the wire shape of the leading field of a
// checked-mode record: a timestamp plus an optional index. Absence of the
// index means the record is a head update rather than an entry.
type OptionalIndexedTimestamp struct {
	US    Microseconds `json:"us"`
	Index *uint64      `json:"index,omitempty"`
}

func (o OptionalIndexedTimestamp) HasIndex() bool {
	return o.Index != nil
}

// HeadUpdate signals that the remote's logical clock advanced without a new
// entry.
type HeadUpdate struct {
	US Microseconds
}

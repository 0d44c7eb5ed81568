package recordstream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrMalformedChunk is returned by a Decoder when a record cannot be parsed
// according to its mode. It carries no state of its own — the loop that
// owns the decoder is responsible for counting consecutive occurrences and
// deciding when to reconnect.
type ErrMalformedChunk struct {
	Record []byte
	Reason string
}

func (e *ErrMalformedChunk) Error() string {
	return fmt.Sprintf("malformed record: %s: %q", e.Reason, e.Record)
}

func malformed(record []byte, reason string, args ...any) *ErrMalformedChunk {
	return &ErrMalformedChunk{Record: append([]byte(nil), record...), Reason: fmt.Sprintf(reason, args...)}
}

// Sink receives decoded events in order. Exactly one of the three callbacks
// fires per successfully decoded record. A non-nil error from the
// EntryDecoder aborts the decode of that record as malformed.
type Sink[T any] interface {
	// Entry is called for a fully decoded indexed entry. Returning false
	// tells the caller the subscriber is done (translates to the
	// SubscriberEnded condition).
	Entry(entry T, at IndexedTimestamp) (more bool)
	// RawLine is called in unchecked mode for a record that contains a
	// TAB; the sink is responsible for any further parsing of raw.
	RawLine(raw []byte, index uint64) (more bool)
	// Head is called for a head-only timestamp update.
	Head(us Microseconds) (more bool)
}

// EntryDecoder decodes the entry payload half of a checked-mode record.
// Implementations are expected to be a thin wrapper around a JSON decoder
// for the user's chosen entry type.
type EntryDecoder[T any] func(raw []byte) (T, error)

// Decoder turns framed records into sink calls, dispatching on one of two
// fixed modes: Checked or Unchecked. The mode is chosen once, at
// construction, and never changes afterwards; Decode checks it once per
// record to pick the checked or unchecked path.
type Decoder[T any] struct {
	checked      bool
	decodeEntry  EntryDecoder[T]
	expectedNext uint64
	malformedRun int
}

// NewCheckedDecoder returns a decoder for the checked wire encoding: each
// record is a JSON OptionalIndexedTimestamp, optionally followed by a TAB
// and a JSON-encoded entry.
func NewCheckedDecoder[T any](startIndex uint64, decodeEntry EntryDecoder[T]) *Decoder[T] {
	return &Decoder[T]{checked: true, decodeEntry: decodeEntry, expectedNext: startIndex}
}

// NewUncheckedDecoder returns a decoder for the unchecked wire encoding:
// each record is either an opaque TAB-delimited raw line, or a JSON
// HeadUpdate.
func NewUncheckedDecoder[T any](startIndex uint64) *Decoder[T] {
	return &Decoder[T]{checked: false, expectedNext: startIndex}
}

// ExpectedIndex reports the index the decoder expects the next entry to
// carry. It survives reconnection; a new subscription gets a new Decoder
// with its own start index.
func (d *Decoder[T]) ExpectedIndex() uint64 {
	return d.expectedNext
}

// ConsecutiveMalformed reports how many malformed records have been seen in
// a row since the last successfully decoded one.
func (d *Decoder[T]) ConsecutiveMalformed() int {
	return d.malformedRun
}

// Decode dispatches record to sink according to the decoder's mode. It
// returns the sink's more/done verdict, or a non-nil error (always
// *ErrMalformedChunk) if the record could not be parsed.
func (d *Decoder[T]) Decode(record []byte, sink Sink[T]) (more bool, err error) {
	if d.checked {
		more, err = d.decodeChecked(record, sink)
	} else {
		more, err = d.decodeUnchecked(record, sink)
	}
	if err != nil {
		d.malformedRun++
	} else {
		d.malformedRun = 0
	}
	return more, err
}

func (d *Decoder[T]) decodeChecked(record []byte, sink Sink[T]) (bool, error) {
	tab := bytes.IndexByte(record, '\t')
	var field0, field1 []byte
	hasField1 := false
	if tab < 0 {
		field0 = record
	} else {
		field0, field1 = record[:tab], record[tab+1:]
		hasField1 = true
	}
	if len(field0) == 0 {
		return false, malformed(record, "empty record")
	}

	var tsoptidx OptionalIndexedTimestamp
	if err := json.Unmarshal(field0, &tsoptidx); err != nil {
		return false, malformed(record, "invalid ts_optidx JSON: %v", err)
	}

	if tsoptidx.HasIndex() {
		if !hasField1 {
			return false, malformed(record, "entry record missing TAB-separated payload")
		}
		index := *tsoptidx.Index
		if index != d.expectedNext {
			return false, malformed(record, "index %d does not match expected %d", index, d.expectedNext)
		}
		entry, err := d.decodeEntry(field1)
		if err != nil {
			return false, malformed(record, "invalid entry JSON: %v", err)
		}
		d.expectedNext++
		return sink.Entry(entry, IndexedTimestamp{Index: index, US: tsoptidx.US}), nil
	}

	if hasField1 {
		return false, malformed(record, "head update record must not carry a TAB-separated payload")
	}
	return sink.Head(tsoptidx.US), nil
}

func (d *Decoder[T]) decodeUnchecked(record []byte, sink Sink[T]) (bool, error) {
	if bytes.IndexByte(record, '\t') >= 0 {
		index := d.expectedNext
		d.expectedNext++
		return sink.RawLine(record, index), nil
	}

	var tsonly struct {
		US Microseconds `json:"us"`
	}
	if err := json.Unmarshal(record, &tsonly); err != nil {
		return false, malformed(record, "invalid ts_only JSON: %v", err)
	}
	return sink.Head(tsonly.US), nil
}

package edbstream

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/streamrep/localstream"
	"github.com/andreyvit/streamrep/recordstream"
)

type note struct {
	Text string `msgpack:"text"`
}

func decodeNote(payload []byte) (note, error) {
	var n note
	err := msgpack.Unmarshal(payload, &n)
	return n, err
}

func openTest(t *testing.T) *Stream[note] {
	t.Helper()
	s, err := Open[note](filepath.Join(t.TempDir(), "stream.db"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBecomeFollowingStream_Exclusivity(t *testing.T) {
	s := openTest(t)

	pub, err := s.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}
	if pub == nil {
		t.Fatal("BecomeFollowingStream returned nil publisher")
	}

	if _, err := s.BecomeFollowingStream(); !errors.Is(err, localstream.ErrAlreadyFollowing) {
		t.Fatalf("second BecomeFollowingStream error = %v, want ErrAlreadyFollowing", err)
	}

	s.BecomeAuthoritative()

	if _, err := s.BecomeFollowingStream(); err != nil {
		t.Fatalf("BecomeFollowingStream after BecomeAuthoritative: %v", err)
	}
}

func TestPublish_RoundTrip(t *testing.T) {
	s := openTest(t)
	pub, err := s.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}

	pub.Publish(note{Text: "first"}, 100)
	pub.Publish(note{Text: "second"}, 200)

	if n := s.NumberOfEntries(); n != 2 {
		t.Fatalf("NumberOfEntries = %d, want 2", n)
	}

	entries, err := s.EntriesFrom(0, decodeNote)
	if err != nil {
		t.Fatalf("EntriesFrom: %v", err)
	}
	if len(entries) != 2 || entries[0].Text != "first" || entries[1].Text != "second" {
		t.Fatalf("EntriesFrom = %+v", entries)
	}

	if _, ok := s.LastPublishedAt(); !ok {
		t.Fatal("LastPublishedAt ok = false after Publish")
	}
}

func TestEntriesFrom_SkipsBelowIndex(t *testing.T) {
	s := openTest(t)
	pub, err := s.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}

	pub.Publish(note{Text: "zero"}, 100)
	pub.Publish(note{Text: "one"}, 200)
	pub.Publish(note{Text: "two"}, 300)

	entries, err := s.EntriesFrom(1, decodeNote)
	if err != nil {
		t.Fatalf("EntriesFrom: %v", err)
	}
	if len(entries) != 2 || entries[0].Text != "one" || entries[1].Text != "two" {
		t.Fatalf("EntriesFrom(1) = %+v", entries)
	}
}

func TestEntriesFrom_SkipsRawRows(t *testing.T) {
	s := openTest(t)
	pub, err := s.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}

	pub.Publish(note{Text: "checked"}, 100)
	pub.PublishUnsafe([]byte(`{"text":"unchecked"}`))

	entries, err := s.EntriesFrom(0, decodeNote)
	if err != nil {
		t.Fatalf("EntriesFrom: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "checked" {
		t.Fatalf("EntriesFrom = %+v, want only the checked row", entries)
	}
	if n := s.NumberOfEntries(); n != 2 {
		t.Fatalf("NumberOfEntries = %d, want 2 (checked + raw)", n)
	}
}

func TestPublishUnsafe_AdvancesLastPublishedAt(t *testing.T) {
	s := openTest(t)
	pub, err := s.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}

	if _, ok := s.LastPublishedAt(); ok {
		t.Fatal("LastPublishedAt ok = true before any write")
	}

	pub.PublishUnsafe([]byte(`{"text":"unchecked"}`))

	if _, ok := s.LastPublishedAt(); !ok {
		t.Fatal("LastPublishedAt ok = false after PublishUnsafe; an unchecked-mode deployment would never see a status timestamp")
	}
}

// TestRestartResumesIndexSequencing verifies that reopening a stream after a
// restart seeds the publisher's next index from the highest persisted entry,
// so a replicator resuming a subscription never re-publishes or skips an
// index.
func TestRestartResumesIndexSequencing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.db")

	s1, err := Open[note](path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pub1, err := s1.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}
	pub1.Publish(note{Text: "a"}, 100)
	pub1.Publish(note{Text: "b"}, 200)
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open[note](path, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	highest, ok := s2.HighestIndex()
	if !ok || highest != 1 {
		t.Fatalf("HighestIndex = (%d, %v), want (1, true)", highest, ok)
	}

	pub2, err := s2.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream after reopen: %v", err)
	}
	pub2.Publish(note{Text: "c"}, 300)

	entries, err := s2.EntriesFrom(0, decodeNote)
	if err != nil {
		t.Fatalf("EntriesFrom: %v", err)
	}
	if len(entries) != 3 || entries[2].Text != "c" {
		t.Fatalf("EntriesFrom after reopen = %+v", entries)
	}
}

// unmarshalable always fails msgpack.Marshal, to exercise Publish's
// marshal-failure path.
type unmarshalable struct{}

var errCannotMarshal = errors.New("cannot marshal unmarshalable")

func (unmarshalable) EncodeMsgpack(enc *msgpack.Encoder) error {
	return errCannotMarshal
}

func TestPublish_MarshalFailureDropsEntryWithoutAdvancing(t *testing.T) {
	s2, err := Open[unmarshalable](filepath.Join(t.TempDir(), "stream.db"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s2.Close()

	pub, err := s2.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}

	pub.Publish(unmarshalable{}, 100)

	if n := s2.NumberOfEntries(); n != 0 {
		t.Fatalf("NumberOfEntries after failed marshal = %d, want 0", n)
	}
	if _, ok := s2.HighestIndex(); ok {
		t.Fatal("HighestIndex ok = true after a marshal failure that dropped the only entry")
	}
}

func TestLastPublishedAt_UpdatedByUpdateHead(t *testing.T) {
	s := openTest(t)
	pub, err := s.BecomeFollowingStream()
	if err != nil {
		t.Fatalf("BecomeFollowingStream: %v", err)
	}

	if _, ok := s.LastPublishedAt(); ok {
		t.Fatal("LastPublishedAt ok = true before any write")
	}

	pub.UpdateHead(recordstream.Microseconds(500))
	if _, ok := s.LastPublishedAt(); !ok {
		t.Fatal("LastPublishedAt ok = false after UpdateHead")
	}
}

package streamrep

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andreyvit/streamrep/recordstream"
	"github.com/andreyvit/streamrep/schemafp"
)

type noteEntry struct {
	Text string `json:"text"`
}

func decodeNote(raw []byte) (noteEntry, error) {
	var e noteEntry
	err := json.Unmarshal(raw, &e)
	return e, err
}

// fakeRemote serves the wire protocol this package speaks: schema.simple,
// sizeonly, chunked subscriptions and the terminate side-channel.
type fakeRemote struct {
	mu           sync.Mutex
	schema       schemafp.Descriptor
	subN         int
	stopChannels map[string]chan struct{}
	terminated   []string

	// chunks, when non-nil, is written verbatim (already TAB/newline
	// framed) to every subscription, one string per Write+Flush call.
	chunks []string
	// writeDelay pauses between chunks so tests can interleave assertions
	// mid-stream.
	writeDelay time.Duration
}

func newFakeRemote(schema schemafp.Descriptor) *fakeRemote {
	return &fakeRemote{schema: schema, stopChannels: map[string]chan struct{}{}}
}

func (f *fakeRemote) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/schema.simple":
			_ = json.NewEncoder(w).Encode(f.schema)
		case r.URL.Query().Has("sizeonly"):
			fmt.Fprintf(w, "%d", len(f.chunks))
		case r.URL.Query().Has("terminate"):
			id := r.URL.Query().Get("terminate")
			f.mu.Lock()
			f.terminated = append(f.terminated, id)
			if ch, ok := f.stopChannels[id]; ok {
				select {
				case <-ch:
				default:
					close(ch)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case r.URL.Query().Has("i"):
			f.serveSubscription(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeRemote) serveSubscription(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.subN++
	id := fmt.Sprintf("sub-%d", f.subN)
	stop := make(chan struct{})
	f.stopChannels[id] = stop
	chunks := f.chunks
	delay := f.writeDelay
	f.mu.Unlock()

	w.Header().Set("X-Current-Stream-Subscription-Id", id)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for _, c := range chunks {
		select {
		case <-stop:
			return
		case <-r.Context().Done():
			return
		default:
		}
		if _, err := w.Write([]byte(c)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	select {
	case <-stop:
	case <-r.Context().Done():
	}
}

func (f *fakeRemote) terminatedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminated...)
}

// recordingSubscriber implements Subscriber[noteEntry] and records every
// call it receives, for assertions.
type recordingSubscriber struct {
	mu      sync.Mutex
	entries []noteEntry
	idxts   []recordstream.IndexedTimestamp
	heads   []recordstream.Microseconds
	raws    []string
	doneAt  int
}

func (s *recordingSubscriber) OnEntry(entry noteEntry, at recordstream.IndexedTimestamp) EntryResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.idxts = append(s.idxts, at)
	if s.doneAt != 0 && len(s.entries) >= s.doneAt {
		return Done
	}
	return More
}
func (s *recordingSubscriber) OnRawLine(raw []byte, index uint64) EntryResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raws = append(s.raws, string(raw))
	return More
}
func (s *recordingSubscriber) OnHead(us recordstream.Microseconds) EntryResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heads = append(s.heads, us)
	return More
}
func (s *recordingSubscriber) OnTerminateRequested() TerminationResponse {
	return Terminate
}

func (s *recordingSubscriber) snapshotEntries() []noteEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]noteEntry(nil), s.entries...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

func TestSubscribe_EmptyStream(t *testing.T) {
	schema := schemafp.Reflect[noteEntry](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	remote := newFakeRemote(schema)
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	rs, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sub := &recordingSubscriber{}
	var doneCount int
	var doneMu sync.Mutex
	handle := rs.Subscribe(ctx, sub, 0, false, func() {
		doneMu.Lock()
		doneCount++
		doneMu.Unlock()
	})

	time.Sleep(50 * time.Millisecond)
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	handle.Close(closeCtx)

	if len(sub.snapshotEntries()) != 0 {
		t.Fatalf("expected no entries, got %v", sub.snapshotEntries())
	}
	doneMu.Lock()
	got := doneCount
	doneMu.Unlock()
	if got != 1 {
		t.Fatalf("on_done fired %d times, want 1", got)
	}
}

func TestSubscribe_ThreeEntriesChecked(t *testing.T) {
	schema := schemafp.Reflect[noteEntry](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	remote := newFakeRemote(schema)
	remote.chunks = []string{
		`{"us":1,"index":0}` + "\t" + `{"text":"A"}` + "\n" +
			`{"us":2,"index":1}` + "\t" + `{"text":"B"}` + "\n" +
			`{"us":3,"index":2}` + "\t" + `{"text":"C"}` + "\n",
	}
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	rs, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sub := &recordingSubscriber{}
	handle := rs.Subscribe(ctx, sub, 0, false, nil)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		handle.Close(closeCtx)
	}()

	waitFor(t, time.Second, func() bool { return len(sub.snapshotEntries()) == 3 })

	want := []string{"A", "B", "C"}
	got := sub.snapshotEntries()
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("entry %d = %q, want %q", i, got[i].Text, w)
		}
	}
	for i, idxts := range sub.idxts {
		if idxts.Index != uint64(i) {
			t.Errorf("index %d = %d, want %d", i, idxts.Index, i)
		}
	}
}

func TestSubscribe_HeadUpdate(t *testing.T) {
	schema := schemafp.Reflect[noteEntry](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	remote := newFakeRemote(schema)
	remote.chunks = []string{
		`{"us":5,"index":0}` + "\t" + `{"text":"A"}` + "\n" + `{"us":9}` + "\n",
	}
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	rs, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := &recordingSubscriber{}
	handle := rs.Subscribe(ctx, sub, 0, false, nil)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		handle.Close(closeCtx)
	}()

	waitFor(t, time.Second, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return len(sub.entries) == 1 && len(sub.heads) == 1
	})
	if sub.heads[0] != 9 {
		t.Fatalf("head = %d, want 9", sub.heads[0])
	}
}

func TestSubscribe_SchemaMismatchFailsConstruction(t *testing.T) {
	wrongSchema := schemafp.Descriptor{TypeID: "totally-different", EntryName: "Entry", NamespaceName: "Stream"}
	remote := newFakeRemote(wrongSchema)
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	_, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err == nil {
		t.Fatal("expected schema mismatch error")
	}
}

func TestSubscribe_CancellationFiresTerminateExactlyOnce(t *testing.T) {
	schema := schemafp.Reflect[noteEntry](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	remote := newFakeRemote(schema)
	remote.writeDelay = 20 * time.Millisecond
	remote.chunks = []string{
		`{"us":1,"index":0}` + "\t" + `{"text":"A"}` + "\n",
		`{"us":2,"index":1}` + "\t" + `{"text":"B"}` + "\n",
		`{"us":3,"index":2}` + "\t" + `{"text":"C"}` + "\n",
	}
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	rs, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := &recordingSubscriber{}
	handle := rs.Subscribe(ctx, sub, 0, false, nil)

	waitFor(t, time.Second, func() bool { return len(sub.snapshotEntries()) >= 1 })

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	handle.Close(closeCtx)

	if got := remote.terminatedIDs(); len(got) != 1 {
		t.Fatalf("terminated ids = %v, want exactly one", got)
	}
}

func TestSubscribe_MalformedRunOfThree(t *testing.T) {
	schema := schemafp.Reflect[noteEntry](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	remote := newFakeRemote(schema)
	// Every reconnect attempt re-requests ?i=0 and gets a mismatched index,
	// which is malformed under the checked decoder.
	remote.chunks = []string{`{"us":1,"index":7}` + "\t" + `{"text":"X"}` + "\n"}
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	rs, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := &recordingSubscriber{}
	handle := rs.Subscribe(ctx, sub, 0, false, nil)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		handle.Close(closeCtx)
	}()

	waitFor(t, 4*time.Second, func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return remote.subN >= 3
	})
}

func TestSubscribe_SinkReturnsDone(t *testing.T) {
	schema := schemafp.Reflect[noteEntry](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	remote := newFakeRemote(schema)
	remote.chunks = []string{
		`{"us":1,"index":0}` + "\t" + `{"text":"A"}` + "\n" +
			`{"us":2,"index":1}` + "\t" + `{"text":"B"}` + "\n" +
			`{"us":3,"index":2}` + "\t" + `{"text":"C"}` + "\n",
	}
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	rs, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sub := &recordingSubscriber{doneAt: 2}
	var doneCount int
	var doneMu sync.Mutex
	handle := rs.Subscribe(ctx, sub, 0, false, func() {
		doneMu.Lock()
		doneCount++
		doneMu.Unlock()
	})

	// The sink signals Done internally after the second entry; no external
	// cancellation ever happens, so the worker must reach stateDone on its
	// own and Wait must return promptly instead of hanging.
	waitDone := make(chan struct{})
	go func() {
		handle.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after sink signaled Done")
	}

	if got := sub.snapshotEntries(); len(got) != 2 {
		t.Fatalf("entries = %v, want 2", got)
	}
	if got := handle.State(); got != "done" {
		t.Fatalf("State() = %q, want %q", got, "done")
	}

	doneMu.Lock()
	got := doneCount
	doneMu.Unlock()
	if got != 1 {
		t.Fatalf("on_done fired %d times, want 1", got)
	}

	// Close must still be safe to call after the worker already finished on
	// its own.
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	handle.Close(closeCtx)
}

func TestSubscribeUnchecked_RawLine(t *testing.T) {
	schema := schemafp.Reflect[noteEntry](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	remote := newFakeRemote(schema)
	remote.chunks = []string{"opaque-prefix\ttail-data\n"}
	srv := httptest.NewServer(remote.handler())
	defer srv.Close()

	ctx := context.Background()
	rs, err := New[noteEntry](ctx, srv.URL, decodeNote)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := &recordingSubscriber{}
	handle := rs.SubscribeUnchecked(ctx, sub, 0, false, nil)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		handle.Close(closeCtx)
	}()

	waitFor(t, time.Second, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return len(sub.raws) == 1
	})
	if sub.raws[0] != "opaque-prefix\ttail-data" {
		t.Fatalf("raw = %q", sub.raws[0])
	}
}

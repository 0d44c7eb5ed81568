package remoteendpoint

import (
	"context"
	"net/http"
	"testing"

	"github.com/andreyvit/streamrep/chunked"
	"github.com/andreyvit/streamrep/httpreplay"
	"github.com/andreyvit/streamrep/schemafp"
)

type note struct {
	Text string
}

func TestNew_SchemaMatches(t *testing.T) {
	schema := schemafp.Reflect[note](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)

	tr := httpreplay.NewTransport(t, &httpreplay.ExpectedCall{
		Call:         "GET /schema.simple",
		ResponseCode: http.StatusOK,
		Response:     `{"type_id":"` + schema.TypeID + `","entry_name":"Entry","namespace_name":"Stream"}`,
	})
	client := &chunked.Client{HTTPClient: &http.Client{Transport: tr}}

	ep, err := New(context.Background(), client, "http://remote.example", schema)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ep == nil {
		t.Fatal("New returned nil endpoint")
	}
}

func TestNew_SchemaMismatch(t *testing.T) {
	schema := schemafp.Reflect[note](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)

	tr := httpreplay.NewTransport(t, &httpreplay.ExpectedCall{
		Call:         "GET /schema.simple",
		ResponseCode: http.StatusOK,
		Response:     `{"type_id":"deadbeef","entry_name":"Entry","namespace_name":"Stream"}`,
	})
	client := &chunked.Client{HTTPClient: &http.Client{Transport: tr}}

	_, err := New(context.Background(), client, "http://remote.example", schema)
	if err == nil {
		t.Fatal("expected schema mismatch error")
	}
	if !SchemaMismatch.Is(err) {
		t.Fatalf("error %v is not SchemaMismatch", err)
	}
}

func TestTerminate_IssuesGET(t *testing.T) {
	schema := schemafp.Reflect[note](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)

	tr := httpreplay.NewTransport(t,
		&httpreplay.ExpectedCall{
			Call:         "GET /schema.simple",
			ResponseCode: http.StatusOK,
			Response:     `{"type_id":"` + schema.TypeID + `","entry_name":"Entry","namespace_name":"Stream"}`,
		},
		&httpreplay.ExpectedCall{
			Call:         "GET ",
			Form:         map[string]string{"terminate": "sub-1"},
			ResponseCode: http.StatusOK,
		},
	)
	client := &chunked.Client{HTTPClient: &http.Client{Transport: tr}}

	ep, err := New(context.Background(), client, "http://remote.example", schema)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ep.Terminate(context.Background(), "sub-1")
}

func newTestEndpoint(t *testing.T) *Endpoint {
	t.Helper()
	schema := schemafp.Reflect[note](schemafp.DefaultEntryName, schemafp.DefaultNamespaceName)
	tr := httpreplay.NewTransport(t, &httpreplay.ExpectedCall{
		Call:         "GET /schema.simple",
		ResponseCode: http.StatusOK,
		Response:     `{"type_id":"` + schema.TypeID + `","entry_name":"Entry","namespace_name":"Stream"}`,
	})
	client := &chunked.Client{HTTPClient: &http.Client{Transport: tr}}
	ep, err := New(context.Background(), client, "http://remote.example", schema)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ep
}

func TestOnShutdown_CloseFansOut(t *testing.T) {
	ep := newTestEndpoint(t)

	var calls int
	ep.OnShutdown(func() { calls++ })
	ep.OnShutdown(func() { calls++ })

	ep.Close()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}

	ep.Close() // idempotent, must not call again
	if calls != 2 {
		t.Fatalf("calls after second Close = %d, want 2", calls)
	}
}

func TestOnShutdown_RegisterAfterCloseFiresImmediately(t *testing.T) {
	ep := newTestEndpoint(t)
	ep.Close()

	var called bool
	unregister := ep.OnShutdown(func() { called = true })
	if !called {
		t.Fatal("cancel was not invoked immediately for an already-closed endpoint")
	}
	unregister() // must be a safe no-op
}

func TestOnShutdown_UnregisterPreventsCall(t *testing.T) {
	ep := newTestEndpoint(t)

	var called bool
	unregister := ep.OnShutdown(func() { called = true })
	unregister()

	ep.Close()
	if called {
		t.Fatal("cancel fired after unregister")
	}
}

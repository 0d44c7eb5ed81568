// Package remoteendpoint holds the base URL and expected schema fingerprint
// of a remote entry stream, and builds the four URLs the wire protocol
// needs.
package remoteendpoint

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andreyvit/streamrep/chunked"
	"github.com/andreyvit/streamrep/httpcall"
	"github.com/andreyvit/streamrep/httperrors"
	"github.com/andreyvit/streamrep/jsonext"
	"github.com/andreyvit/streamrep/schemafp"
)

var (
	// SchemaMismatch is fatal at construction: the remote's schema.simple
	// response does not structurally match the local entry type.
	SchemaMismatch = httperrors.Define(http.StatusConflict, "schema_mismatch")
	// Unreachable covers any transport failure or non-200 status probing
	// the remote (schema check, size probe).
	Unreachable = httperrors.Define(http.StatusBadGateway, "endpoint_unreachable")
)

// Endpoint holds no connection of its own and is freely shareable by any
// number of subscriber loops. Its base URL, schema, and transport are fixed
// at construction; the one piece of mutable state is the set of shutdown
// callbacks registered via OnShutdown, which exists so the endpoint owner
// can cancel every outstanding subscriber in one call, mirroring the
// original implementation's shutdown fan-out.
type Endpoint struct {
	base   string
	schema schemafp.Descriptor
	client *chunked.Client

	mu         sync.Mutex
	onShutdown map[uint64]func()
	nextID     uint64
	closed     bool
}

// New probes CheckSchema synchronously; construction fails iff the remote
// schema descriptor differs from the local one, matching the source's
// synchronous constructor-time check.
func New(ctx context.Context, client *chunked.Client, baseURL string, schema schemafp.Descriptor) (*Endpoint, error) {
	e := &Endpoint{base: strings.TrimSuffix(baseURL, "/"), schema: schema, client: client}
	if err := e.CheckSchema(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// CheckSchema issues GET {base}/schema.simple and compares the parsed body
// for structural equality to the local descriptor. It retries transport
// failures a couple of times through httpcall before giving up, since a
// schema check that fails once on a cold connection shouldn't fail
// construction outright.
func (e *Endpoint) CheckSchema(ctx context.Context) error {
	var remote schemafp.Descriptor
	req := &httpcall.Request{
		Context:     ctx,
		CallID:      "streamrep.check_schema",
		Method:      http.MethodGet,
		BaseURL:     e.base,
		Path:        "/schema.simple",
		HTTPClient:  e.httpClient(),
		MaxAttempts: 3,
		ParseResponse: func(r *httpcall.Request) error {
			return jsonext.UnmarshalLenient(r.RawResponseBody, &remote)
		},
	}
	if err := req.Do(); err != nil {
		return Unreachable.Wrap(err)
	}
	if !remote.Equal(e.schema) {
		return SchemaMismatch.Msgf("remote schema %+v does not match local schema %+v", remote, e.schema)
	}
	return nil
}

// httpClient exposes the *http.Client backing the streaming client's
// chunked GETs, so the non-streaming calls made through httpcall share the
// same transport and TLS configuration.
func (e *Endpoint) httpClient() *http.Client {
	if e.client.HTTPClient != nil {
		return e.client.HTTPClient
	}
	return http.DefaultClient
}

// GetEntryCount issues GET {base}?sizeonly and parses the body as an
// unsigned decimal integer.
func (e *Endpoint) GetEntryCount(ctx context.Context) (uint64, error) {
	body, err := e.client.Get(ctx, e.base+"?sizeonly")
	if err != nil {
		return 0, Unreachable.Wrap(err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, Unreachable.Wrap(err)
	}
	return n, nil
}

// BuildSubscribeURL returns {base}?i={index}, with &checked appended iff
// checked is true.
func (e *Endpoint) BuildSubscribeURL(index uint64, checked bool) string {
	u := fmt.Sprintf("%s?i=%d", e.base, index)
	if checked {
		u += "&checked"
	}
	return u
}

// BuildTerminateURL returns {base}?terminate={subscriptionID}.
func (e *Endpoint) BuildTerminateURL(subscriptionID string) string {
	return fmt.Sprintf("%s?terminate=%s", e.base, subscriptionID)
}

// ChunkedGET delegates to the underlying transport client, so the
// subscriber loop never talks to *chunked.Client directly.
func (e *Endpoint) ChunkedGET(ctx context.Context, url string, onHeader func(key, value string), onChunk func(chunk []byte) error) error {
	return e.client.ChunkedGET(ctx, url, onHeader, onChunk)
}

// OnShutdown registers cancel to be called when Close is invoked, and
// returns an unregister func the caller must invoke once cancel is no
// longer needed (typically when its own subscription ends on its own,
// without Close ever firing) so the registry doesn't grow unbounded across
// a long-lived endpoint's many subscriptions. If the endpoint is already
// closed, cancel is invoked immediately and unregister is a no-op.
//
// Each subscriber loop registers its own cancel func here at connect time,
// so a single Close fans out to every subscriber currently attached to this
// endpoint — the endpoint-owner-initiated counterpart to a subscriber
// dropping its own handle.
func (e *Endpoint) OnShutdown(cancel func()) (unregister func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return func() {}
	}
	if e.onShutdown == nil {
		e.onShutdown = make(map[uint64]func())
	}
	id := e.nextID
	e.nextID++
	e.onShutdown[id] = cancel
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.onShutdown, id)
		e.mu.Unlock()
	}
}

// Close cancels every subscriber currently registered via OnShutdown and
// marks the endpoint closed; any subscriber that registers afterwards is
// cancelled immediately instead of being silently dropped. Close is
// idempotent.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancels := e.onShutdown
	e.onShutdown = nil
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Terminate issues GET {base}?terminate={id}, ignoring any error — the
// wire protocol treats this call as best-effort. It retries transport
// failures through httpcall since a dropped terminate call just means the
// remote streams a little longer than it needed to, never a correctness
// problem worth surfacing to the caller.
func (e *Endpoint) Terminate(ctx context.Context, subscriptionID string) {
	req := &httpcall.Request{
		Context:     ctx,
		CallID:      "streamrep.terminate",
		Method:      http.MethodGet,
		BaseURL:     e.base,
		QueryParams: map[string][]string{"terminate": {subscriptionID}},
		HTTPClient:  e.httpClient(),
		MaxAttempts: 2,
	}
	_ = req.Do()
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	cache "github.com/hanpama/graphcache/internal/cache"
	language "github.com/hanpama/graphcache/internal/language"
	reqid "github.com/hanpama/graphcache/internal/reqid"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	calls   []GraphQLRequest
	ids     []string
	respond func(req GraphQLRequest) (*Result, error)
}

func (f *fakeUpstream) Execute(ctx context.Context, req GraphQLRequest, _ http.Header) (*Result, error) {
	f.calls = append(f.calls, req)
	id, _ := reqid.FromContext(ctx)
	f.ids = append(f.ids, id)
	return f.respond(req)
}

func todosUpstream() *fakeUpstream {
	return &fakeUpstream{respond: func(GraphQLRequest) (*Result, error) {
		return &Result{Data: map[string]any{
			"todos": []any{
				map[string]any{"__typename": "Todo", "id": "1", "text": "Buy milk"},
			},
		}}, nil
	}}
}

func newTestHandler(t *testing.T, up Upstream, opts ...Option) *Handler {
	t.Helper()
	h, err := New(cache.New(), up, opts...)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return h
}

func post(t *testing.T, h http.Handler, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/graphql", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out map[string]any
	if strings.HasPrefix(w.Body.String(), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return w, out
}

const todosBody = `{"query":"{ todos { id text } }"}`

func TestCacheFirst(t *testing.T) {
	up := todosUpstream()
	h := newTestHandler(t, up)

	w, first := post(t, h, todosBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	require.Equal(t, "miss", w.Header().Get(CacheHeader))
	require.Len(t, up.calls, 1)
	require.Contains(t, up.calls[0].Query, "__typename", "typenames are added before forwarding")

	w, second := post(t, h, todosBody)
	require.Equal(t, "hit", w.Header().Get(CacheHeader))
	require.Len(t, up.calls, 1, "complete reads are served locally")

	wantTodos := []any{map[string]any{"__typename": "Todo", "id": "1", "text": "Buy milk"}}
	if diff := cmp.Diff(wantTodos, first["data"].(map[string]any)["todos"]); diff != "" {
		t.Fatalf("upstream data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantTodos, second["data"].(map[string]any)["todos"]); diff != "" {
		t.Fatalf("cached data mismatch (-want +got):\n%s", diff)
	}
}

func TestPolicies(t *testing.T) {
	up := todosUpstream()
	h := newTestHandler(t, up)

	w, body := post(t, h, todosBody, PolicyHeader, string(CacheOnly))
	require.Equal(t, "hit", w.Header().Get(CacheHeader))
	require.Empty(t, up.calls)
	require.Nil(t, body["data"].(map[string]any)["todos"], "cache-only returns partial data")

	post(t, h, todosBody)
	w, _ = post(t, h, todosBody, PolicyHeader, string(NetworkOnly))
	require.Equal(t, "miss", w.Header().Get(CacheHeader))
	require.Len(t, up.calls, 2)

	h = newTestHandler(t, todosUpstream(), WithPolicy(NetworkOnly))
	post(t, h, todosBody)
	w, _ = post(t, h, todosBody)
	require.Equal(t, "miss", w.Header().Get(CacheHeader))
}

func TestUpstreamFailure(t *testing.T) {
	up := &fakeUpstream{respond: func(GraphQLRequest) (*Result, error) {
		return nil, errors.New("connection refused")
	}}
	h := newTestHandler(t, up)

	w, body := post(t, h, todosBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].(map[string]any)["message"], "connection refused")
}

func TestMutationOptimisticLayer(t *testing.T) {
	store := cache.New(cache.WithOptimisticMutations(cache.OptimisticConfig{
		"rename": func(args map[string]any, _ *cache.Cache, _ *cache.ResolveInfo) any {
			return map[string]any{"__typename": "Todo", "id": args["id"], "text": "pending"}
		},
	}))
	todosDoc, err := language.ParseQuery(`{ todos { __typename id text } }`)
	require.NoError(t, err)
	todos := cache.Request{Query: todosDoc}
	store.Write(todos, map[string]any{
		"todos": []any{map[string]any{"__typename": "Todo", "id": "1", "text": "Buy milk"}},
	})

	var inFlight any
	up := &fakeUpstream{respond: func(GraphQLRequest) (*Result, error) {
		inFlight = store.Query(todos).Data["todos"].([]any)[0].(map[string]any)["text"]
		return &Result{Data: map[string]any{
			"rename": map[string]any{"__typename": "Todo", "id": "1", "text": "Buy oat milk"},
		}}, nil
	}}
	h, err := New(store, up)
	require.NoError(t, err)

	w, _ := post(t, h, `{"query":"mutation($id: ID!) { rename(id: $id) { id text } }","variables":{"id":"1"}}`)
	require.Equal(t, "miss", w.Header().Get(CacheHeader))
	require.Equal(t, "pending", inFlight)
	require.Equal(t, "Buy oat milk", store.Query(todos).Data["todos"].([]any)[0].(map[string]any)["text"])
	require.Empty(t, store.OptimisticLayers())
}

func TestMutationFailureRevertsLayer(t *testing.T) {
	store := cache.New(cache.WithOptimisticMutations(cache.OptimisticConfig{
		"rename": func(args map[string]any, _ *cache.Cache, _ *cache.ResolveInfo) any {
			return map[string]any{"__typename": "Todo", "id": args["id"], "text": "pending"}
		},
	}))
	up := &fakeUpstream{respond: func(GraphQLRequest) (*Result, error) {
		return nil, errors.New("boom")
	}}
	h, err := New(store, up)
	require.NoError(t, err)

	_, body := post(t, h, `{"query":"mutation { rename(id: \"1\") { id text } }"}`)
	require.NotEmpty(t, body["errors"])
	require.Empty(t, store.OptimisticLayers())
	_, ok := store.Record("Todo:1.text")
	require.False(t, ok)
}

func TestRejectedOperations(t *testing.T) {
	h := newTestHandler(t, todosUpstream())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"subscription", `{"query":"subscription { ticks }"}`, "subscriptions are not supported"},
		{"syntax", `{"query":"{ todos "}`, "Expected Name"},
		{"unknown operation", `{"query":"query A { a } query B { b }","operationName":"C"}`, "operation not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := post(t, h, tt.body)
			errs, _ := body["errors"].([]any)
			require.Len(t, errs, 1)
			require.Contains(t, errs[0].(map[string]any)["message"], tt.want)
		})
	}
}

func TestBatch(t *testing.T) {
	up := todosUpstream()
	h := newTestHandler(t, up)

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`[`+todosBody+`,`+todosBody+`]`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Len(t, up.calls, 1, "the second batch entry is served from the cache")
	require.Empty(t, w.Header().Get(CacheHeader))
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(t, todosUpstream())

	tests := []struct {
		name   string
		method string
		ct     string
		body   string
		status int
	}{
		{"invalid json", "POST", "application/json", `{`, http.StatusBadRequest},
		{"missing query", "POST", "application/json", `{}`, http.StatusBadRequest},
		{"content type", "POST", "text/plain", todosBody, http.StatusBadRequest},
		{"empty batch", "POST", "application/json", `[]`, http.StatusBadRequest},
		{"method", "PUT", "application/json", todosBody, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.ct)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("expected %d got %d", tt.status, w.Code)
			}
		})
	}
}

func TestGetRequest(t *testing.T) {
	up := todosUpstream()
	h := newTestHandler(t, up)

	q := url.Values{
		"query":         {"query T($n: Int) { todos { id } }"},
		"operationName": {"T"},
		"variables":     {`{"n":1}`},
	}
	req := httptest.NewRequest("GET", "/graphql?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	require.Len(t, up.calls, 1)
	require.Equal(t, "T", up.calls[0].OperationName)
	require.EqualValues(t, 1, up.calls[0].Variables["n"])
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, todosUpstream(), WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(todosBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}

	h = newTestHandler(t, todosUpstream(), WithCORS("http://allowed.example"))
	req = httptest.NewRequest("POST", "/", bytes.NewBufferString(todosBody))
	req.Header.Set("Origin", "http://other.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected CORS header %q", got)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, todosUpstream(), WithMaxBodyBytes(10))

	body := bytes.NewBufferString(`{"query":"1234567890"}`)
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	up := todosUpstream()
	h := newTestHandler(t, up)

	w, _ := post(t, h, todosBody)
	id := w.Header().Get(reqid.Header)
	if id == "" {
		t.Fatalf("missing request id header")
	}
	if up.ids[0] != id {
		t.Fatalf("upstream saw request id %q, response has %q", up.ids[0], id)
	}

	incoming := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	w, _ = post(t, h, `{"query":"{ other }"}`, reqid.Header, incoming)
	if got := w.Header().Get(reqid.Header); got != incoming {
		t.Fatalf("incoming request id not kept: %q", got)
	}
}

func TestLayerIDIsStablePerRequest(t *testing.T) {
	ctx, _ := reqid.NewContext(context.Background(), "")
	req := GraphQLRequest{Query: "mutation { a }", Variables: map[string]any{"x": 1}}
	require.Equal(t, layerID(ctx, req), layerID(ctx, req))
	require.NotEqual(t, cache.BaseLayer, layerID(ctx, req))

	other, _ := reqid.NewContext(context.Background(), "")
	require.NotEqual(t, layerID(ctx, req), layerID(other, req))
}

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	cache "github.com/hanpama/graphcache/internal/cache"
	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
	"github.com/hanpama/graphcache/internal/keys"
	language "github.com/hanpama/graphcache/internal/language"
	reqid "github.com/hanpama/graphcache/internal/reqid"
	"github.com/samber/lo"
)

// CacheHeader reports how a single operation was answered: "hit" when served
// from the cache, "miss" when forwarded upstream.
const CacheHeader = "X-Graphcache"

// PolicyHeader lets a client override the cache policy per request.
const PolicyHeader = "X-Graphcache-Policy"

// Policy selects how queries use the cache.
type Policy string

const (
	// CacheFirst answers complete cache reads locally and forwards the rest.
	CacheFirst Policy = "cache-first"
	// NetworkOnly always forwards and refreshes the cache.
	NetworkOnly Policy = "network-only"
	// CacheOnly never forwards; partial data is returned as is.
	CacheOnly Policy = "cache-only"
)

// Handler is an http.Handler serving a GraphQL endpoint in front of an
// upstream server, answering queries from a normalized cache when it can.
type Handler struct {
	upstream Upstream
	opt      Options

	// mu serializes access to store.
	mu    sync.Mutex
	store *cache.Store
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Policy is the default cache policy for queries.
	Policy Policy
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithPolicy(p Policy) Option { return func(o *Options) { o.Policy = p } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a caching GraphQL handler over store and upstream.
func New(store *cache.Store, upstream Upstream, opts ...Option) (*Handler, error) {
	op := Options{Timeout: 10 * time.Second, Policy: CacheFirst}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{store: store, upstream: upstream, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status := http.StatusOK
	cacheResult := ""
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Cache: cacheResult, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(nil, &language.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(nil, berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	policy := h.opt.Policy
	if p := Policy(r.Header.Get(PolicyHeader)); p == CacheFirst || p == NetworkOnly || p == CacheOnly {
		policy = p
	}

	if batch != nil {
		out := make([]any, len(batch))
		for i := range batch {
			out[i], _ = h.executeOne(ctx, batch[i], r.Header, policy)
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	var res any
	res, cacheResult = h.executeOne(ctx, req, r.Header, policy)
	if cacheResult != "" {
		w.Header().Set(CacheHeader, cacheResult)
	}
	writeJSON(w, status, res, h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest, header http.Header, policy Policy) (res any, cacheResult string) {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		if ge, ok := err.(*language.Error); ok {
			return errorResponse(nil, ge), ""
		}
		return errorResponse(nil, &language.Error{Message: err.Error()}), ""
	}
	opDef := language.MainOperation(doc, req.OperationName)
	if opDef == nil {
		return errorResponse(nil, &language.Error{Message: "operation not found"}), ""
	}
	opType := string(opDef.Operation)

	start := time.Now()
	var errs []error
	eventbus.Publish(ctx, events.OperationStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	defer func() {
		eventbus.Publish(ctx, events.OperationFinish{
			OperationName: req.OperationName,
			OperationType: opType,
			Cache:         cacheResult,
			Errors:        errs,
			Duration:      time.Since(start),
		})
	}()

	// Entities can only be keyed when their type is known.
	language.AddTypenames(doc)
	forward := req
	forward.Query = language.FormatQuery(doc)
	creq := cache.Request{Query: doc, OperationName: req.OperationName, Variables: req.Variables}

	switch opDef.Operation {
	case language.Subscription:
		errs = append(errs, &language.Error{Message: "subscriptions are not supported"})
		return errorResponse(nil, &language.Error{Message: "subscriptions are not supported"}), ""
	case language.Mutation:
		result, err := h.mutate(ctx, creq, forward, header)
		if err != nil {
			errs = append(errs, err)
			return errorResponse(nil, &language.Error{Message: err.Error()}), "miss"
		}
		return result, "miss"
	}

	if policy != NetworkOnly {
		read := h.read(ctx, creq)
		if !read.Partial || policy == CacheOnly {
			return specResult{Data: read.Data}, "hit"
		}
	}

	result, err := h.upstream.Execute(ctx, forward, header)
	if err != nil {
		errs = append(errs, err)
		return errorResponse(nil, &language.Error{Message: err.Error()}), "miss"
	}
	if result.Data != nil {
		h.write(ctx, creq, result.Data)
	}
	return result, "miss"
}

func (h *Handler) read(ctx context.Context, req cache.Request) cache.QueryResult {
	h.mu.Lock()
	res := h.store.Query(req)
	h.mu.Unlock()
	eventbus.Publish(ctx, events.CacheQuery{
		OperationName: req.OperationName,
		Partial:       res.Partial,
		Dependencies:  len(res.Dependencies),
	})
	return res
}

func (h *Handler) write(ctx context.Context, req cache.Request, data map[string]any) {
	h.mu.Lock()
	res := h.store.Write(req, data)
	h.mu.Unlock()
	eventbus.Publish(ctx, events.CacheWrite{
		OperationName: req.OperationName,
		OperationType: string(language.MainOperation(req.Query, req.OperationName).Operation),
		Dependencies:  len(res.Dependencies),
	})
}

// mutate applies the optimistic result of a mutation while it is in flight,
// then replaces it with the upstream result.
func (h *Handler) mutate(ctx context.Context, req cache.Request, forward GraphQLRequest, header http.Header) (*Result, error) {
	layer := layerID(ctx, forward)
	h.mu.Lock()
	opt := h.store.WriteOptimistic(req, layer)
	h.mu.Unlock()
	eventbus.Publish(ctx, events.CacheWrite{
		OperationName: req.OperationName,
		OperationType: string(language.Mutation),
		Layer:         uint64(layer),
		Dependencies:  len(opt.Dependencies),
	})

	result, err := h.upstream.Execute(ctx, forward, header)

	h.mu.Lock()
	h.store.RevertOptimistic(layer)
	h.mu.Unlock()
	eventbus.Publish(ctx, events.OptimisticLayer{Layer: uint64(layer), Action: "revert"})

	if err != nil {
		return nil, err
	}
	if result.Data != nil {
		h.write(ctx, req, result.Data)
	}
	return result, nil
}

// layerID derives the optimistic layer of a request from its id and content.
func layerID(ctx context.Context, req GraphQLRequest) cache.LayerID {
	rid, _ := reqid.FromContext(ctx)
	id := xxhash.Sum64String(rid + "\x00" + req.OperationName + "\x00" + req.Query + "\x00" + keys.Stringify(req.Variables))
	if id == uint64(cache.BaseLayer) {
		id++
	}
	return cache.LayerID(id)
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message    string         `json:"message"`
	Locations  []specLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type specResult struct {
	Data   any         `json:"data"`
	Errors []specError `json:"errors,omitempty"`
}

func errorResponse(data any, err *language.Error) specResult {
	se := specError{Message: err.Message}
	for _, loc := range err.Locations {
		se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
	}
	return specResult{Data: data, Errors: []specError{se}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	wildcard := lo.Contains(opts.AllowedOrigins, "*")
	if !wildcard && !lo.Contains(opts.AllowedOrigins, origin) {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

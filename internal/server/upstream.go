package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
	reqid "github.com/hanpama/graphcache/internal/reqid"
	"github.com/pkg/errors"
)

// Upstream executes GraphQL requests the cache cannot answer.
type Upstream interface {
	Execute(ctx context.Context, req GraphQLRequest, header http.Header) (*Result, error)
}

// Result is a GraphQL response as returned by the upstream server.
type Result struct {
	Data       map[string]any `json:"data"`
	Errors     []specError    `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// HTTPUpstream posts requests to a GraphQL endpoint as JSON.
type HTTPUpstream struct {
	URL    string
	Client *http.Client
	// Headers lists incoming headers copied onto upstream requests.
	Headers []string
}

// NewHTTPUpstream creates an upstream for url with the given per-request timeout.
func NewHTTPUpstream(url string, timeout time.Duration, headers ...string) *HTTPUpstream {
	return &HTTPUpstream{URL: url, Client: &http.Client{Timeout: timeout}, Headers: headers}
}

func (u *HTTPUpstream) Execute(ctx context.Context, req GraphQLRequest, header http.Header) (res *Result, err error) {
	status := 0
	start := time.Now()
	eventbus.Publish(ctx, events.UpstreamStart{URL: u.URL, OperationName: req.OperationName})
	defer func() {
		eventbus.Publish(ctx, events.UpstreamFinish{
			URL:           u.URL,
			OperationName: req.OperationName,
			Status:        status,
			Err:           err,
			Duration:      time.Since(start),
		})
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encoding upstream request")
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building upstream request")
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	for _, name := range u.Headers {
		for _, v := range header.Values(name) {
			hr.Header.Add(name, v)
		}
	}
	if rid, ok := reqid.FromContext(ctx); ok {
		hr.Header.Set(reqid.Header, rid)
	}

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hr)
	if err != nil {
		return nil, errors.Wrap(err, "upstream request")
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading upstream response")
	}
	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("upstream returned %s", resp.Status)
		}
		return nil, errors.Wrap(err, "decoding upstream response")
	}
	if out.Data == nil && len(out.Errors) == 0 {
		return nil, fmt.Errorf("upstream returned %s without data: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return &out, nil
}

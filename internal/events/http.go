package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the proxy receives an HTTP request.
// The context passed with it carries the request id.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the handler wrote its response.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Cache    string // "hit", "miss" or "" for batches and errors
	Duration time.Duration
}

package events

import "time"

// UpstreamStart is emitted before a request is forwarded upstream.
type UpstreamStart struct {
	URL           string
	OperationName string
}

// UpstreamFinish is emitted when the upstream round trip completes.
type UpstreamFinish struct {
	URL           string
	OperationName string
	Status        int
	Err           error
	Duration      time.Duration
}

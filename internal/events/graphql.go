package events

import "time"

// OperationStart is emitted before the proxy handles one GraphQL operation.
type OperationStart struct {
	Query         string
	OperationName string
	OperationType string
}

// OperationFinish is emitted after the operation was answered.
type OperationFinish struct {
	OperationName string
	OperationType string
	Cache         string
	Errors        []error
	Duration      time.Duration
}

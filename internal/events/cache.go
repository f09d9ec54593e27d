package events

// CacheQuery is emitted after a read from the normalized store.
type CacheQuery struct {
	OperationName string
	Partial       bool
	Dependencies  int
}

// CacheWrite is emitted after a result was written into the store.
// Layer is zero for confirmed data.
type CacheWrite struct {
	OperationName string
	OperationType string
	Layer         uint64
	Dependencies  int
}

// OptimisticLayer is emitted when an optimistic layer is committed or reverted.
type OptimisticLayer struct {
	Layer  uint64
	Action string // "commit" or "revert"
}

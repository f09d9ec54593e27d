// Package reqid carries a per-request id through contexts.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header an incoming request id is read from and echoed to.
const Header = "X-Request-Id"

type key struct{}

// NewContext returns a copy of parent carrying id, or a fresh random id when
// id is not a valid UUID. It also returns the id stored.
func NewContext(parent context.Context, id string) (context.Context, string) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request id from ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}

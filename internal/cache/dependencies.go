package cache

import (
	"sort"

	"github.com/samber/lo"
)

// Dependencies is the set of addresses and entity keys an operation touched.
type Dependencies map[string]struct{}

func (d Dependencies) Add(key string) { d[key] = struct{}{} }

func (d Dependencies) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Sorted returns the members in lexical order.
func (d Dependencies) Sorted() []string {
	out := lo.Keys(d)
	sort.Strings(out)
	return out
}

// Intersects reports whether any key is shared with other, which is how a
// caller decides that a cached read was invalidated by a write.
func (d Dependencies) Intersects(other Dependencies) bool {
	small, large := d, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for k := range small {
		if large.Has(k) {
			return true
		}
	}
	return false
}

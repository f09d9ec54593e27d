// Package keys derives the string addresses used by the normalized cache:
// entity keys, field keys, and their joins.
package keys

import "strconv"

// Separator joins an entity key with a field key, and an address with a list index.
const Separator = "."

// KeyFunc computes the entity key for data of one type. Returning "" forces
// the data to be embedded into its parent instead of being normalized.
type KeyFunc func(data map[string]any) string

// Config maps type names to custom key functions.
type Config map[string]KeyFunc

// OfEntity returns the entity key for data, or "" when none can be derived.
func OfEntity(cfg Config, data map[string]any) string {
	typename, _ := data["__typename"].(string)
	if fn, ok := cfg[typename]; ok && fn != nil {
		return fn(data)
	}
	if typename == "" {
		return ""
	}
	for _, field := range [...]string{"id", "_id"} {
		if id := scalarKey(data[field]); id != "" {
			return typename + ":" + id
		}
	}
	return ""
}

// HasCustomKey reports whether cfg registers a key function for typename.
func HasCustomKey(cfg Config, typename string) bool {
	fn, ok := cfg[typename]
	return ok && fn != nil
}

// OfField returns the field key for a field called with args.
func OfField(name string, args map[string]any) string {
	if len(args) == 0 {
		return name
	}
	return name + "(" + Stringify(args) + ")"
}

// Join composes a parent address with a child key.
func Join(parent, child string) string {
	return parent + Separator + child
}

// Index addresses element i of the list stored at parent.
func Index(parent string, i int) string {
	return Join(parent, strconv.Itoa(i))
}

func scalarKey(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case map[string]any, []any:
		return ""
	default:
		return Stringify(id)
	}
}

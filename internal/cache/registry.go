package cache

import language "github.com/hanpama/graphcache/internal/language"

// Data is a JSON-shaped response object.
type Data = map[string]any

// ResolveInfo describes the field a callback was invoked for.
type ResolveInfo struct {
	ParentTypeName string
	ParentKey      string
	// ParentFieldKey is the address of the field being resolved.
	ParentFieldKey string
	FieldName      string
	Variables      map[string]any
	Fragments      map[string]*language.FragmentDefinition
	Optimistic     bool
}

// Resolver computes a field while reading. parent is the partially built
// object of the enclosing selection. For fields with a selection set the
// result may be nil, an entity key string, an object (merged over the stored
// entity, resolver fields winning), or a list of those.
type Resolver func(parent Data, args map[string]any, c *Cache, info *ResolveInfo) any

// Updater runs after a mutation or subscription root field was written.
type Updater func(result Data, args map[string]any, c *Cache, info *ResolveInfo)

// OptimisticResolver fabricates the result of a mutation root field before
// the server answers.
type OptimisticResolver func(args map[string]any, c *Cache, info *ResolveInfo) any

// ResolverConfig maps type name, then field name, to a Resolver.
type ResolverConfig map[string]map[string]Resolver

// UpdatesConfig maps a root type name (Mutation or Subscription), then field
// name, to an Updater.
type UpdatesConfig map[string]map[string]Updater

// OptimisticConfig maps mutation field names to optimistic resolvers.
type OptimisticConfig map[string]OptimisticResolver

func (c ResolverConfig) lookup(typename, field string) Resolver {
	if c == nil {
		return nil
	}
	return c[typename][field]
}

func (c UpdatesConfig) lookup(typename, field string) Updater {
	if c == nil {
		return nil
	}
	return c[typename][field]
}

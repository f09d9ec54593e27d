// Package cache implements a normalized, in-memory cache for GraphQL results.
//
// # Storage model
//
// Responses are flattened into a graph of string addresses. An entity is
// addressed by its entity key ("Todo:1", see package keys); each of its fields
// lives at the entity key joined with the field key ("Todo:1.text",
// "Query.todos({"first":10})"). An address holds exactly one of:
//
//   - a record: a leaf value (scalar, enum, null, or an opaque JSON value), or
//   - a link: nil, an entity key, or a (nested) []any of entity keys.
//
// Entities never own each other; links are indirections through keys, so
// cyclic entity graphs need no special handling.
//
// # Layers
//
// The base layer holds confirmed data. Optimistic layers are sparse overlays
// created per in-flight mutation and identified by a caller-supplied LayerID.
// Reads consult layers newest first and fall back to the base; a layer may
// also hide an address with a tombstone. CommitOptimistic folds a layer into
// the base, RevertOptimistic drops it; both ignore unknown ids. Layers keep
// the order in which they were first opened, so committing a layer while an
// older one still holds the same address leaves the older value visible until
// that layer is committed or reverted too.
//
// # Operations
//
// Write normalizes a response: query results are written starting at the
// query root; mutation and subscription results are normalized per root
// field, after which the registered Updater for that field runs. Query
// rebuilds a response from the graph, consulting registered Resolvers first,
// and reports whether any field was missing (Partial). Both report the
// Dependencies they touched: every entity key, plus the query root field
// addresses.
//
// Resolvers, Updaters and OptimisticResolvers receive a *Cache handle bound to
// the layer and dependency set of the operation that invoked them. Writes made
// through the handle, including UpdateQuery, land in that layer.
//
// # Diagnostics
//
// Shape mismatches, unkeyable entities and malformed fragment documents never
// abort an operation. They are reported through the configured *slog.Logger
// with a "code" attribute (see DiagnosticCode).
//
// The Store is not safe for concurrent use; callers serialize access.
package cache

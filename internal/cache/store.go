package cache

import (
	"log/slog"

	"github.com/hanpama/graphcache/internal/keys"
	language "github.com/hanpama/graphcache/internal/language"
	"github.com/hanpama/graphcache/internal/schema"
	"github.com/hanpama/graphcache/internal/traversal"
)

// Request is one operation of a document together with its variables.
type Request struct {
	Query         *language.QueryDocument
	OperationName string
	Variables     map[string]any
}

// Store is the normalized graph plus the user configuration that shapes how
// data is written into it and read back out.
type Store struct {
	graph      *graph
	keys       keys.Config
	resolvers  ResolverConfig
	updates    UpdatesConfig
	optimistic OptimisticConfig
	predicates *schema.Predicates
	logger     *slog.Logger

	queryRoot        string
	mutationRoot     string
	subscriptionRoot string
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		graph:      newGraph(),
		keys:       o.Keys,
		resolvers:  o.Resolvers,
		updates:    o.Updates,
		optimistic: o.OptimisticMutations,
		logger:     o.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if o.Schema != nil {
		s.predicates = schema.NewPredicates(o.Schema)
	}
	s.queryRoot, s.mutationRoot, s.subscriptionRoot = s.predicates.RootTypes()
	return s
}

// RootKey returns the root type name that anchors an operation kind.
func (s *Store) RootKey(op language.Operation) string {
	switch op {
	case language.Mutation:
		return s.mutationRoot
	case language.Subscription:
		return s.subscriptionRoot
	default:
		return s.queryRoot
	}
}

// KeyOfEntity returns the entity key of data, or "" when it has none.
func (s *Store) KeyOfEntity(data Data) string {
	return keys.OfEntity(s.keys, data)
}

// Base returns a handle writing into the base layer.
func (s *Store) Base() *Cache {
	return &Cache{store: s, layer: BaseLayer}
}

// BeginOptimistic opens the optimistic layer id and returns a handle writing
// into it. Opening an existing layer returns a handle to that layer.
func (s *Store) BeginOptimistic(id LayerID) *Cache {
	if id != BaseLayer {
		s.graph.ensure(id)
	}
	return &Cache{store: s, layer: id}
}

// CommitOptimistic folds the layer into the base. Unknown ids are ignored.
func (s *Store) CommitOptimistic(id LayerID) {
	if id == BaseLayer {
		return
	}
	s.graph.commit(id)
}

// RevertOptimistic discards the layer. Unknown ids are ignored.
func (s *Store) RevertOptimistic(id LayerID) {
	if id == BaseLayer {
		return
	}
	s.graph.revert(id)
}

// OptimisticLayers lists open layers, oldest first.
func (s *Store) OptimisticLayers() []LayerID {
	return s.graph.layerIDs()
}

// WriteRecord stores a scalar value at addr in the base layer.
func (s *Store) WriteRecord(value any, addr string) { s.Base().WriteRecord(value, addr) }

// WriteLink stores an entity key, nil, or a list of them at addr in the base layer.
func (s *Store) WriteLink(link any, addr string) { s.Base().WriteLink(link, addr) }

// RemoveRecord deletes the record at addr from the base layer.
func (s *Store) RemoveRecord(addr string) { s.Base().RemoveRecord(addr) }

// RemoveLink deletes the link at addr from the base layer.
func (s *Store) RemoveLink(addr string) { s.Base().RemoveLink(addr) }

// Record returns the merged view of the record at addr.
func (s *Store) Record(addr string) (any, bool) { return s.Base().Record(addr) }

// Link returns the merged view of the link at addr.
func (s *Store) Link(addr string) (any, bool) { return s.Base().Link(addr) }

// WriteFragment writes data through the first fragment of doc into the base layer.
func (s *Store) WriteFragment(doc *language.QueryDocument, data Data) WriteResult {
	return s.Base().WriteFragment(doc, data)
}

// ReadFragment reads entity, given as data or key, through the first
// fragment of doc. It returns nil when the entity is missing or incomplete.
func (s *Store) ReadFragment(doc *language.QueryDocument, entity any) Data {
	return s.Base().ReadFragment(doc, entity)
}

// operation is the state of a single read or write pass.
type operation struct {
	store      *Store
	layer      LayerID
	baseOnly   bool
	deps       Dependencies
	trav       *traversal.Context
	optimistic bool
	partial    bool
}

func (s *Store) newOperation(doc *language.QueryDocument, op *language.OperationDefinition, variables map[string]any, c *Cache) *operation {
	deps := c.deps
	if deps == nil {
		deps = Dependencies{}
	}
	return &operation{
		store:    s,
		layer:    c.layer,
		baseOnly: c.baseOnly,
		deps:     deps,
		trav:     s.newTraversal(doc, op, variables),
	}
}

func (s *Store) newTraversal(doc *language.QueryDocument, op *language.OperationDefinition, variables map[string]any) *traversal.Context {
	ctx := traversal.NewContext(doc, op, variables)
	if s.predicates != nil {
		ctx.Matcher = s.predicates
	}
	ctx.Logger = s.logger
	return ctx
}

// cache returns a handle sharing this operation's layer and dependencies.
func (o *operation) cache() *Cache {
	return &Cache{store: o.store, layer: o.layer, deps: o.deps, baseOnly: o.baseOnly}
}

func (o *operation) info(typename, parentKey, fieldKey string, field *language.Field) *ResolveInfo {
	return &ResolveInfo{
		ParentTypeName: typename,
		ParentKey:      parentKey,
		ParentFieldKey: fieldKey,
		FieldName:      field.Name,
		Variables:      o.trav.Variables,
		Fragments:      o.trav.Fragments,
		Optimistic:     o.optimistic,
	}
}

func (o *operation) warn(code DiagnosticCode, msg string, attrs ...any) {
	o.store.warn(code, msg, attrs...)
}

func (s *Store) warn(code DiagnosticCode, msg string, attrs ...any) {
	s.logger.Warn(msg, append([]any{"code", string(code)}, attrs...)...)
}

func (o *operation) get(addr string) (slot, bool) {
	return o.store.graph.get(addr, o.baseOnly)
}

func (o *operation) record(addr string) (any, bool) {
	s, ok := o.get(addr)
	if !ok || s.kind != slotRecord {
		return nil, false
	}
	return s.value, true
}

func (o *operation) link(addr string) (any, bool) {
	s, ok := o.get(addr)
	if !ok || s.kind != slotLink {
		return nil, false
	}
	return s.value, true
}

func (o *operation) writeRecord(value any, addr string) {
	o.store.graph.set(o.layer, addr, slot{kind: slotRecord, value: value})
}

func (o *operation) writeLink(link any, addr string) {
	o.store.graph.set(o.layer, addr, slot{kind: slotLink, value: link})
}

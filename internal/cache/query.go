package cache

import (
	"github.com/hanpama/graphcache/internal/keys"
	language "github.com/hanpama/graphcache/internal/language"
	"github.com/hanpama/graphcache/internal/traversal"
)

// QueryResult is data rebuilt from the graph. Missing fields are present as
// nil and flag the result Partial.
type QueryResult struct {
	Data         Data
	Dependencies Dependencies
	Partial      bool
}

type queryOptions struct {
	baseOnly bool
	result   Data
}

// QueryOption configures Query.
type QueryOption func(*queryOptions)

// BaseOnly reads confirmed data only, ignoring every optimistic layer.
func BaseOnly() QueryOption {
	return func(o *queryOptions) { o.baseOnly = true }
}

// FromResult supplies the server result of a mutation or subscription. Its
// root fields locate the entities to read back from the graph.
func FromResult(data Data) QueryOption {
	return func(o *queryOptions) { o.result = data }
}

// Query rebuilds the result of req from the graph.
func (s *Store) Query(req Request, opts ...QueryOption) QueryResult {
	var qo queryOptions
	for _, opt := range opts {
		opt(&qo)
	}
	c := s.Base()
	c.baseOnly = qo.baseOnly
	return s.query(req, c, qo.result)
}

func (s *Store) query(req Request, c *Cache, result Data) QueryResult {
	def := language.MainOperation(req.Query, req.OperationName)
	if def == nil {
		s.warn(CodeMissingOperation, "document has no operation to read", "operation", req.OperationName)
		return QueryResult{Dependencies: Dependencies{}, Partial: true}
	}
	o := s.newOperation(req.Query, def, req.Variables, c)
	root := s.RootKey(def.Operation)
	var data Data
	if root == s.queryRoot {
		data = o.readSelection(root, def.SelectionSet, Data{}, nil)
	} else {
		data = o.readRoot(root, def.SelectionSet, result)
	}
	return QueryResult{Data: data, Dependencies: o.deps, Partial: o.partial}
}

func (o *operation) readRoot(typename string, set language.SelectionSet, input Data) Data {
	data := Data{}
	if typename != "" {
		data["__typename"] = typename
	}
	for field := range traversal.Select(o.trav, typename, typename, set) {
		alias := language.ResponseName(field)
		if field.Name == "__typename" {
			data[alias] = typename
			continue
		}
		value, ok := input[alias]
		if !ok {
			o.partial = true
			data[alias] = nil
			continue
		}
		if len(field.SelectionSet) == 0 || isScalar(value) {
			data[alias] = value
			continue
		}
		data[alias] = o.readRootField(field.SelectionSet, value)
	}
	return data
}

func (o *operation) readRootField(set language.SelectionSet, value any) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = o.readRootField(set, item)
		}
		return out
	case Data:
		if key := o.store.KeyOfEntity(v); key != "" {
			data := o.readSelection(key, set, Data{}, nil)
			if data == nil {
				o.partial = true
			}
			return data
		}
		typename, _ := v["__typename"].(string)
		return o.readRoot(typename, set, v)
	}
	return nil
}

// readSelection fills data with the fields of set read for entityKey.
// result, when set, is a resolver-produced object whose fields take
// precedence over stored ones. It returns nil if the entity is unknown.
func (o *operation) readSelection(entityKey string, set language.SelectionSet, data Data, result Data) Data {
	isQuery := entityKey == o.store.queryRoot
	typename := entityKey
	if !isQuery {
		o.deps.Add(entityKey)
		stored, _ := o.record(keys.Join(entityKey, "__typename"))
		storedName, _ := stored.(string)
		resolvedName, _ := result["__typename"].(string)
		if storedName != "" && resolvedName != "" && storedName != resolvedName {
			o.warn(CodeInvalidResolverValue, "resolver returned an object whose __typename differs from the stored entity",
				"entity", entityKey, "stored", storedName, "resolved", resolvedName)
			return nil
		}
		typename = storedName
		if typename == "" {
			typename = resolvedName
		}
		if typename == "" {
			return nil
		}
	}
	data["__typename"] = typename

	for field := range traversal.Select(o.trav, typename, entityKey, set) {
		alias := language.ResponseName(field)
		if field.Name == "__typename" {
			data[alias] = typename
			continue
		}
		args := traversal.FieldArguments(field, o.trav.Variables)
		fieldKey := keys.Join(entityKey, keys.OfField(field.Name, args))
		if isQuery {
			o.deps.Add(fieldKey)
		}
		value, ok := o.readField(typename, entityKey, fieldKey, field, args, data, result)
		if !ok {
			o.partial = true
			if _, exists := data[alias]; !exists {
				data[alias] = nil
			}
			continue
		}
		data[alias] = value
	}
	return data
}

// readField resolves one field: a registered resolver wins, then the
// resolver-produced parent object, then the graph.
func (o *operation) readField(typename, entityKey, fieldKey string, field *language.Field, args map[string]any, parent, result Data) (any, bool) {
	alias := language.ResponseName(field)
	if resolver := o.store.resolvers.lookup(typename, field.Name); resolver != nil {
		if args == nil {
			args = map[string]any{}
		}
		value := resolver(parent, args, o.cache(), o.info(typename, entityKey, fieldKey, field))
		if len(field.SelectionSet) == 0 {
			return value, true
		}
		return o.readResolved(fieldKey, field.SelectionSet, parent[alias], value)
	}
	if result != nil {
		value, ok := result[alias]
		if !ok {
			value, ok = result[field.Name]
		}
		if ok {
			if len(field.SelectionSet) == 0 {
				return value, true
			}
			return o.readResolved(fieldKey, field.SelectionSet, parent[alias], value)
		}
	}
	if len(field.SelectionSet) == 0 {
		return o.record(fieldKey)
	}
	if link, ok := o.link(fieldKey); ok {
		return o.readLink(link, field.SelectionSet, parent[alias])
	}
	// A scalar written where a selection was expected.
	return o.record(fieldKey)
}

// readLink follows a stored link. Missing list items become nil and mark
// the read partial without failing the list.
func (o *operation) readLink(link any, set language.SelectionSet, prev any) (any, bool) {
	switch l := link.(type) {
	case nil:
		return nil, true
	case string:
		data := o.readSelection(l, set, reuse(prev), nil)
		if data == nil {
			return nil, false
		}
		return data, true
	case []any:
		prevList, _ := prev.([]any)
		out := make([]any, len(l))
		for i, item := range l {
			value, ok := o.readLink(item, set, at(prevList, i))
			if !ok {
				o.partial = true
			}
			out[i] = value
		}
		return out, true
	}
	return nil, false
}

// readResolved reads the value a resolver produced for a field with a
// selection set. Objects are merged over the entity they identify, or over
// the data stored at key when they carry no entity key.
func (o *operation) readResolved(key string, set language.SelectionSet, prev any, value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case string:
		data := o.readSelection(v, set, reuse(prev), nil)
		if data == nil {
			return nil, false
		}
		return data, true
	case Data:
		entityKey := o.store.KeyOfEntity(v)
		if entityKey == "" {
			entityKey = key
		}
		data := o.readSelection(entityKey, set, reuse(prev), v)
		if data == nil {
			return nil, false
		}
		return data, true
	}
	list, ok := asList(value)
	if !ok {
		o.warn(CodeInvalidResolverValue, "resolver returned a scalar for a field with a selection set", "address", key)
		return nil, false
	}
	prevList, _ := prev.([]any)
	out := make([]any, len(list))
	for i, item := range list {
		value, ok := o.readResolved(keys.Index(key, i), set, at(prevList, i), item)
		if !ok {
			o.partial = true
		}
		out[i] = value
	}
	return out, true
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []Data:
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = item
		}
		return out, true
	case []string:
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

func reuse(prev any) Data {
	if d, ok := prev.(Data); ok && d != nil {
		return d
	}
	return Data{}
}

func at(list []any, i int) any {
	if i < len(list) {
		return list[i]
	}
	return nil
}

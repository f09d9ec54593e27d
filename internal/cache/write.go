package cache

import (
	"strings"

	"github.com/hanpama/graphcache/internal/keys"
	language "github.com/hanpama/graphcache/internal/language"
	"github.com/hanpama/graphcache/internal/traversal"
)

// WriteResult reports the entity keys and query root field addresses a write touched.
type WriteResult struct {
	Dependencies Dependencies
}

// Write normalizes data, the result of req, into the base layer.
func (s *Store) Write(req Request, data Data) WriteResult {
	return s.write(req, data, s.Base())
}

func (s *Store) write(req Request, data Data, c *Cache) WriteResult {
	def := language.MainOperation(req.Query, req.OperationName)
	if def == nil {
		s.warn(CodeMissingOperation, "document has no operation to write", "operation", req.OperationName)
		return WriteResult{Dependencies: Dependencies{}}
	}
	o := s.newOperation(req.Query, def, req.Variables, c)
	root := s.RootKey(def.Operation)
	if root == s.queryRoot {
		o.writeSelection(root, def.SelectionSet, data)
	} else {
		o.writeRoot(root, def.SelectionSet, data)
	}
	return WriteResult{Dependencies: o.deps}
}

// WriteOptimistic runs the registered optimistic resolvers for the root fields
// of a mutation and writes their results into layer id. Other operation kinds
// and the base layer are ignored.
func (s *Store) WriteOptimistic(req Request, id LayerID) WriteResult {
	def := language.MainOperation(req.Query, req.OperationName)
	if def == nil || def.Operation != language.Mutation || id == BaseLayer {
		return WriteResult{Dependencies: Dependencies{}}
	}
	o := s.newOperation(req.Query, def, req.Variables, s.BeginOptimistic(id))
	o.optimistic = true
	root := s.mutationRoot
	for field := range traversal.Select(o.trav, root, root, def.SelectionSet) {
		if len(field.SelectionSet) == 0 {
			continue
		}
		resolver := s.optimistic[field.Name]
		if resolver == nil {
			continue
		}
		args := fieldArgs(field, o.trav.Variables)
		value := resolver(args, o.cache(), o.info(root, root, keys.Join(root, keys.OfField(field.Name, args)), field))
		if isScalar(value) {
			o.warn(CodeInvalidResolverValue, "optimistic resolver returned a scalar for a field with a selection set",
				"field", field.Name)
			continue
		}
		o.writeRootField(value, field.SelectionSet)
	}
	return WriteResult{Dependencies: o.deps}
}

func (o *operation) writeSelection(entityKey string, set language.SelectionSet, data Data) {
	isQuery := entityKey == o.store.queryRoot
	typename, _ := data["__typename"].(string)
	if isQuery {
		typename = entityKey
	} else {
		o.deps.Add(entityKey)
	}
	if typename != "" {
		o.writeRecord(typename, keys.Join(entityKey, "__typename"))
	}

	for field := range traversal.Select(o.trav, typename, entityKey, set) {
		if field.Name == "__typename" {
			continue
		}
		alias := language.ResponseName(field)
		args := traversal.FieldArguments(field, o.trav.Variables)
		fieldKey := keys.Join(entityKey, keys.OfField(field.Name, args))
		if isQuery {
			o.deps.Add(fieldKey)
		}
		value, ok := data[alias]
		if !ok {
			o.warn(CodeUndefinedField, "selected field is missing from the data being written",
				"field", alias, "entity", entityKey)
			continue
		}
		if typename != "" && !o.store.predicates.IsFieldAvailableOnType(typename, field.Name) {
			o.warn(CodeUnknownField, "field is not defined on type", "field", field.Name, "type", typename)
		}
		if len(field.SelectionSet) == 0 {
			o.writeRecord(value, fieldKey)
			continue
		}
		if isScalar(value) {
			o.warn(CodeScalarForSelection, "field with a selection set holds a scalar value",
				"field", alias, "entity", entityKey)
			o.writeRecord(value, fieldKey)
			continue
		}
		o.writeLink(o.writeField(fieldKey, field.SelectionSet, value), fieldKey)
	}
}

// writeField normalizes the value of a field with a selection set and
// returns the link to store for it.
func (o *operation) writeField(parentKey string, set language.SelectionSet, value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		links := make([]any, len(v))
		for i, item := range v {
			links[i] = o.writeField(keys.Index(parentKey, i), set, item)
		}
		return links
	case Data:
		entityKey := o.store.KeyOfEntity(v)
		typename, _ := v["__typename"].(string)
		if entityKey == "" && !keys.HasCustomKey(o.store.keys, typename) && !isEmbeddable(typename) {
			o.warn(CodeUnkeyedEntity, "object has no key and is embedded in its parent",
				"type", typename, "address", parentKey)
		}
		key := entityKey
		if key == "" {
			key = parentKey
		}
		o.writeSelection(key, set, v)
		return key
	default:
		o.warn(CodeScalarForSelection, "list item of a field with a selection set is a scalar", "address", parentKey)
		return nil
	}
}

// writeRoot walks the root fields of a mutation or subscription result.
// Root objects are not stored; keyed entities inside them are, and the
// updater for each root field runs once its value is written.
func (o *operation) writeRoot(typename string, set language.SelectionSet, data Data) {
	isRoot := typename == o.store.mutationRoot || typename == o.store.subscriptionRoot
	for field := range traversal.Select(o.trav, typename, typename, set) {
		if field.Name == "__typename" {
			continue
		}
		value := data[language.ResponseName(field)]
		if len(field.SelectionSet) > 0 && !isScalar(value) {
			o.writeRootField(value, field.SelectionSet)
		}
		if !isRoot {
			continue
		}
		if updater := o.store.updates.lookup(typename, field.Name); updater != nil {
			args := fieldArgs(field, o.trav.Variables)
			updater(data, args, o.cache(), o.info(typename, typename, keys.Join(typename, keys.OfField(field.Name, args)), field))
		}
	}
}

func (o *operation) writeRootField(value any, set language.SelectionSet) {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			o.writeRootField(item, set)
		}
	case Data:
		if key := o.store.KeyOfEntity(v); key != "" {
			o.writeSelection(key, set, v)
			return
		}
		typename, _ := v["__typename"].(string)
		o.writeRoot(typename, set, v)
	}
}

// isEmbeddable reports whether unkeyed objects of typename are expected,
// which holds for relay pagination wrappers.
func isEmbeddable(typename string) bool {
	return strings.HasSuffix(typename, "Connection") || strings.HasSuffix(typename, "Edge")
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, Data, []any:
		return false
	}
	return true
}

func fieldArgs(field *language.Field, variables map[string]any) map[string]any {
	if args := traversal.FieldArguments(field, variables); args != nil {
		return args
	}
	return map[string]any{}
}

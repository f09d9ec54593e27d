package cache

import (
	"github.com/hanpama/graphcache/internal/keys"
	language "github.com/hanpama/graphcache/internal/language"
)

// Cache is a handle on a Store bound to one layer. Handles passed to
// resolvers, updaters and optimistic resolvers also share the dependency set
// of the operation that invoked them, so reads and writes made through the
// handle are reported by that operation.
type Cache struct {
	store    *Store
	layer    LayerID
	deps     Dependencies
	baseOnly bool
}

// Layer returns the layer this handle writes into.
func (c *Cache) Layer() LayerID { return c.layer }

func (c *Cache) KeyOfEntity(data Data) string {
	return c.store.KeyOfEntity(data)
}

func (c *Cache) track(key string) {
	if c.deps != nil && key != "" {
		c.deps.Add(key)
	}
}

func (c *Cache) keyOf(entity any) string {
	switch e := entity.(type) {
	case string:
		return e
	case Data:
		return c.KeyOfEntity(e)
	}
	return ""
}

func (c *Cache) Record(addr string) (any, bool) {
	s, ok := c.store.graph.get(addr, c.baseOnly)
	if !ok || s.kind != slotRecord {
		return nil, false
	}
	return s.value, true
}

func (c *Cache) Link(addr string) (any, bool) {
	s, ok := c.store.graph.get(addr, c.baseOnly)
	if !ok || s.kind != slotLink {
		return nil, false
	}
	return s.value, true
}

// ResolveValueOrLink returns whatever is stored at addr, record or link.
func (c *Cache) ResolveValueOrLink(addr string) (any, bool) {
	s, ok := c.store.graph.get(addr, c.baseOnly)
	if !ok {
		return nil, false
	}
	return s.value, true
}

// Resolve returns the stored value of field on entity, which is either an
// entity key or an object the key can be derived from.
func (c *Cache) Resolve(entity any, field string, args map[string]any) (any, bool) {
	key := c.keyOf(entity)
	if key == "" {
		return nil, false
	}
	c.track(key)
	return c.ResolveValueOrLink(keys.Join(key, keys.OfField(field, args)))
}

// WriteRecord stores value at addr in this handle's layer, replacing a link.
func (c *Cache) WriteRecord(value any, addr string) {
	c.store.graph.set(c.layer, addr, slot{kind: slotRecord, value: value})
}

// WriteLink stores a link at addr in this handle's layer, replacing a record.
func (c *Cache) WriteLink(link any, addr string) {
	c.store.graph.set(c.layer, addr, slot{kind: slotLink, value: link})
}

// RemoveRecord deletes the record at addr. Inside an optimistic layer it
// leaves a tombstone hiding lower layers.
func (c *Cache) RemoveRecord(addr string) {
	c.store.graph.remove(c.layer, addr, slotRecord)
}

// RemoveLink deletes the link at addr, like RemoveRecord.
func (c *Cache) RemoveLink(addr string) {
	c.store.graph.remove(c.layer, addr, slotLink)
}

// ReadQuery reads req through this handle's view of the graph.
func (c *Cache) ReadQuery(req Request) QueryResult {
	return c.store.query(req, c, nil)
}

// UpdateQuery reads req, passes the result to fn and writes what fn returns
// back into this handle's layer. fn receives nil when the read was partial and
// writes nothing when it returns nil.
func (c *Cache) UpdateQuery(req Request, fn func(Data) Data) {
	res := c.store.query(req, c, nil)
	var current Data
	if !res.Partial {
		current = res.Data
	}
	next := fn(current)
	if next == nil {
		return
	}
	c.store.write(req, next, c)
}

// WriteFragment writes data through the first fragment of doc. The fragment's
// type condition supplies __typename when data lacks one.
func (c *Cache) WriteFragment(doc *language.QueryDocument, data Data) WriteResult {
	frag := firstFragment(doc)
	if frag == nil {
		c.store.warn(CodeEmptyFragment, "fragment document contains no fragment definition")
		return WriteResult{Dependencies: Dependencies{}}
	}
	input := make(Data, len(data)+1)
	input["__typename"] = frag.TypeCondition
	for k, v := range data {
		input[k] = v
	}
	key := c.KeyOfEntity(input)
	if key == "" {
		c.store.warn(CodeUnkeyableFragment, "cannot derive an entity key for fragment data",
			"fragment", frag.Name, "typename", input["__typename"])
		return WriteResult{Dependencies: Dependencies{}}
	}
	o := c.store.newOperation(doc, nil, nil, c)
	o.writeSelection(key, frag.SelectionSet, input)
	return WriteResult{Dependencies: o.deps}
}

// ReadFragment reads entity through the first fragment of doc. entity is an
// entity key or an object to derive one from. The result is nil when the
// entity is missing or any selected field is.
func (c *Cache) ReadFragment(doc *language.QueryDocument, entity any) Data {
	frag := firstFragment(doc)
	if frag == nil {
		c.store.warn(CodeEmptyFragment, "fragment document contains no fragment definition")
		return nil
	}
	key := ""
	switch e := entity.(type) {
	case string:
		key = e
	case Data:
		input := make(Data, len(e)+1)
		input["__typename"] = frag.TypeCondition
		for k, v := range e {
			input[k] = v
		}
		key = c.KeyOfEntity(input)
	}
	if key == "" {
		c.store.warn(CodeUnkeyableFragment, "cannot derive an entity key for fragment read", "fragment", frag.Name)
		return nil
	}
	o := c.store.newOperation(doc, nil, nil, c)
	data := o.readSelection(key, frag.SelectionSet, Data{}, nil)
	if data == nil || o.partial {
		return nil
	}
	return data
}

func firstFragment(doc *language.QueryDocument) *language.FragmentDefinition {
	if doc == nil || len(doc.Fragments) == 0 {
		return nil
	}
	return doc.Fragments[0]
}

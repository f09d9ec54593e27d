package cache

// LayerID identifies an optimistic layer. BaseLayer addresses confirmed data.
type LayerID uint64

const BaseLayer LayerID = 0

type slotKind uint8

const (
	slotRecord slotKind = iota + 1
	slotLink
	// slotRemoved hides lower layers inside an optimistic layer.
	slotRemoved
)

type slot struct {
	kind  slotKind
	value any
}

type layer struct {
	id    LayerID
	slots map[string]slot
}

// graph is the layered address space. Layers are kept in creation order,
// newest last.
type graph struct {
	base   map[string]slot
	layers []*layer
}

func newGraph() *graph {
	return &graph{base: make(map[string]slot)}
}

func (g *graph) find(id LayerID) (*layer, int) {
	for i, l := range g.layers {
		if l.id == id {
			return l, i
		}
	}
	return nil, -1
}

// ensure returns the layer for id, creating it on top of the stack.
func (g *graph) ensure(id LayerID) (*layer, int) {
	if l, i := g.find(id); l != nil {
		return l, i
	}
	l := &layer{id: id, slots: make(map[string]slot)}
	g.layers = append(g.layers, l)
	return l, len(g.layers) - 1
}

// get resolves addr newest layer first. baseOnly ignores every optimistic layer.
func (g *graph) get(addr string, baseOnly bool) (slot, bool) {
	if !baseOnly {
		for i := len(g.layers) - 1; i >= 0; i-- {
			if s, ok := g.layers[i].slots[addr]; ok {
				if s.kind == slotRemoved {
					return slot{}, false
				}
				return s, true
			}
		}
	}
	s, ok := g.base[addr]
	return s, ok
}

// beneath resolves addr in the layers older than index idx, then the base.
func (g *graph) beneath(idx int, addr string) (slot, bool) {
	for i := idx - 1; i >= 0; i-- {
		if s, ok := g.layers[i].slots[addr]; ok {
			if s.kind == slotRemoved {
				return slot{}, false
			}
			return s, true
		}
	}
	s, ok := g.base[addr]
	return s, ok
}

func (g *graph) set(id LayerID, addr string, s slot) {
	if id == BaseLayer {
		g.base[addr] = s
		return
	}
	l, _ := g.ensure(id)
	l.slots[addr] = s
}

// remove deletes a value of the given kind from the layer's view of addr.
// Values of the other kind are left in place.
func (g *graph) remove(id LayerID, addr string, kind slotKind) {
	if id == BaseLayer {
		if s, ok := g.base[addr]; ok && s.kind == kind {
			delete(g.base, addr)
		}
		return
	}
	l, idx := g.ensure(id)
	if s, ok := l.slots[addr]; ok {
		if s.kind != kind {
			return
		}
		delete(l.slots, addr)
	}
	if s, ok := g.beneath(idx, addr); ok && s.kind == kind {
		l.slots[addr] = slot{kind: slotRemoved}
	}
}

func (g *graph) commit(id LayerID) bool {
	l, idx := g.find(id)
	if l == nil {
		return false
	}
	for addr, s := range l.slots {
		if s.kind == slotRemoved {
			delete(g.base, addr)
			continue
		}
		g.base[addr] = s
	}
	g.drop(idx)
	return true
}

func (g *graph) revert(id LayerID) bool {
	l, idx := g.find(id)
	if l == nil {
		return false
	}
	g.drop(idx)
	return true
}

func (g *graph) drop(idx int) {
	copy(g.layers[idx:], g.layers[idx+1:])
	g.layers[len(g.layers)-1] = nil
	g.layers = g.layers[:len(g.layers)-1]
}

func (g *graph) layerIDs() []LayerID {
	ids := make([]LayerID, len(g.layers))
	for i, l := range g.layers {
		ids[i] = l.id
	}
	return ids
}

package replay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/cespare/xxhash"
	cache "github.com/hanpama/graphcache/internal/cache"
	"github.com/hanpama/graphcache/internal/config"
	language "github.com/hanpama/graphcache/internal/language"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Line is the output of one step.
type Line struct {
	Step         int        `json:"step"`
	Op           string     `json:"op"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Partial      *bool      `json:"partial,omitempty"`
	Data         cache.Data `json:"data,omitempty"`
	Layers       []string   `json:"layers,omitempty"`
	Diagnostics  []string   `json:"diagnostics,omitempty"`
}

type runner struct {
	store  *cache.Store
	layers map[cache.LayerID]string
	diag   *diagnostics
}

// Run executes script against a fresh Store and writes a JSON line per step
// to w. Extra options are applied after the ones derived from the script.
func Run(script *Script, w io.Writer, opts ...cache.Option) error {
	diag := &diagnostics{}
	cfg := &config.Config{Keys: script.Keys, Optimistic: script.Optimistic}
	base := []cache.Option{
		cache.WithKeys(cfg.KeyConfig()),
		cache.WithOptimisticMutations(cfg.OptimisticConfig()),
		cache.WithLogger(slog.New(diag)),
	}
	r := &runner{
		store:  cache.New(append(base, opts...)...),
		layers: map[cache.LayerID]string{},
		diag:   diag,
	}
	enc := json.NewEncoder(w)
	for i, step := range script.Steps {
		line, err := r.step(step)
		if err != nil {
			return errors.Wrapf(err, "step %d", i+1)
		}
		line.Step = i + 1
		line.Op = step.Op
		line.Layers = r.layerNames()
		line.Diagnostics = r.diag.drain()
		if err := enc.Encode(line); err != nil {
			return errors.Wrap(err, "writing output")
		}
	}
	return nil
}

func (r *runner) step(step Step) (Line, error) {
	var doc *language.QueryDocument
	if step.Query != "" {
		var err error
		if doc, err = language.ParseQuery(step.Query); err != nil {
			return Line{}, errors.Wrap(err, "parsing query")
		}
	}
	req := cache.Request{Query: doc, OperationName: step.OperationName, Variables: step.Variables}

	switch step.Op {
	case "write":
		res := r.store.Write(req, step.Data)
		return Line{Dependencies: res.Dependencies.Sorted()}, nil
	case "query":
		var opts []cache.QueryOption
		if step.BaseOnly {
			opts = append(opts, cache.BaseOnly())
		}
		res := r.store.Query(req, opts...)
		return Line{Dependencies: res.Dependencies.Sorted(), Partial: lo.ToPtr(res.Partial), Data: res.Data}, nil
	case "optimistic":
		id := r.layer(step.Layer)
		res := r.store.WriteOptimistic(req, id)
		return Line{Dependencies: res.Dependencies.Sorted()}, nil
	case "commit":
		id := r.layer(step.Layer)
		r.store.CommitOptimistic(id)
		delete(r.layers, id)
		return Line{}, nil
	case "revert":
		id := r.layer(step.Layer)
		r.store.RevertOptimistic(id)
		delete(r.layers, id)
		return Line{}, nil
	case "write_fragment":
		res := r.store.WriteFragment(doc, step.Data)
		return Line{Dependencies: res.Dependencies.Sorted()}, nil
	case "read_fragment":
		return Line{Data: r.store.ReadFragment(doc, step.Entity)}, nil
	}
	return Line{}, errors.Errorf("unknown op %q", step.Op)
}

// layer maps a layer name to a stable id.
func (r *runner) layer(name string) cache.LayerID {
	id := cache.LayerID(xxhash.Sum64String(name))
	if id == cache.BaseLayer {
		id++
	}
	if _, ok := r.layers[id]; !ok {
		r.layers[id] = name
	}
	return id
}

func (r *runner) layerNames() []string {
	return lo.FilterMap(r.store.OptimisticLayers(), func(id cache.LayerID, _ int) (string, bool) {
		name, ok := r.layers[id]
		return name, ok
	})
}

// diagnostics is a slog.Handler keeping the code of every record until drained.
type diagnostics struct {
	codes []string
}

func (d *diagnostics) Enabled(context.Context, slog.Level) bool { return true }

func (d *diagnostics) Handle(_ context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "code" {
			d.codes = append(d.codes, a.Value.String())
		}
		return true
	})
	return nil
}

func (d *diagnostics) WithAttrs([]slog.Attr) slog.Handler { return d }
func (d *diagnostics) WithGroup(string) slog.Handler      { return d }

func (d *diagnostics) drain() []string {
	out := d.codes
	d.codes = nil
	return out
}

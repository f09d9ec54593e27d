// Package traversal walks GraphQL selection sets against a runtime type,
// splicing matching fragments in place.
package traversal

import (
	"iter"
	"log/slog"

	language "github.com/hanpama/graphcache/internal/language"
)

// TypeMatcher answers whether a concrete type satisfies a fragment type condition.
type TypeMatcher interface {
	IsSubtype(condition, concrete string) bool
}

// Context carries the per-operation inputs of a traversal.
type Context struct {
	Variables map[string]any
	Fragments map[string]*language.FragmentDefinition
	// Matcher may be nil, in which case fragments match on exact type name only.
	Matcher TypeMatcher
	Logger  *slog.Logger
}

// NewContext prepares a traversal context for one operation of doc.
func NewContext(doc *language.QueryDocument, op *language.OperationDefinition, variables map[string]any) *Context {
	ctx := &Context{Fragments: language.Fragments(doc)}
	if op != nil {
		ctx.Variables = NormalizeVariables(op, variables)
	} else {
		ctx.Variables = variables
	}
	return ctx
}

// Select yields the fields of set that apply to typename. entityKey only
// labels diagnostics. The sequence is lazy and may be ranged over any number of times.
func Select(ctx *Context, typename, entityKey string, set language.SelectionSet) iter.Seq[*language.Field] {
	return func(yield func(*language.Field) bool) {
		w := walker{ctx: ctx, typename: typename, entityKey: entityKey, yield: yield}
		w.walk(set)
	}
}

// Fields collects Select into a slice.
func Fields(ctx *Context, typename, entityKey string, set language.SelectionSet) []*language.Field {
	var out []*language.Field
	for f := range Select(ctx, typename, entityKey, set) {
		out = append(out, f)
	}
	return out
}

type walker struct {
	ctx       *Context
	typename  string
	entityKey string
	yield     func(*language.Field) bool
	// fragments currently being expanded, to stop spread cycles
	expanding []string
}

func (w *walker) walk(set language.SelectionSet) bool {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			if !shouldIncludeNode(w.ctx, sel.Directives) {
				continue
			}
			if !w.yield(sel) {
				return false
			}

		case *language.InlineFragment:
			if !shouldIncludeNode(w.ctx, sel.Directives) {
				continue
			}
			if sel.TypeCondition != "" && !w.matches(sel.TypeCondition) {
				continue
			}
			if !w.walk(sel.SelectionSet) {
				return false
			}

		case *language.FragmentSpread:
			if !shouldIncludeNode(w.ctx, sel.Directives) {
				continue
			}
			if w.isExpanding(sel.Name) {
				continue
			}
			fragmentDef := w.ctx.Fragments[sel.Name]
			if fragmentDef == nil {
				w.logger().Warn("fragment spread references an unknown fragment",
					"code", "missing_fragment", "fragment", sel.Name, "entity", w.entityKey)
				continue
			}
			if !w.matches(fragmentDef.TypeCondition) {
				continue
			}
			if !shouldIncludeNode(w.ctx, fragmentDef.Directives) {
				continue
			}
			w.expanding = append(w.expanding, sel.Name)
			ok := w.walk(fragmentDef.SelectionSet)
			w.expanding = w.expanding[:len(w.expanding)-1]
			if !ok {
				return false
			}
		}
	}
	return true
}

func (w *walker) matches(condition string) bool {
	if condition == "" {
		return true
	}
	if w.typename == "" {
		return false
	}
	if condition == w.typename {
		return true
	}
	if w.ctx.Matcher == nil {
		return false
	}
	return w.ctx.Matcher.IsSubtype(condition, w.typename)
}

func (w *walker) isExpanding(name string) bool {
	for _, n := range w.expanding {
		if n == name {
			return true
		}
	}
	return false
}

func (w *walker) logger() *slog.Logger {
	if w.ctx.Logger != nil {
		return w.ctx.Logger
	}
	return slog.Default()
}

// shouldIncludeNode checks if a node should be included based on directives
func shouldIncludeNode(ctx *Context, directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if skipIf, ok := directiveArgument(ctx, skip, "if"); ok {
			if b, ok := skipIf.(bool); ok && b {
				return false
			}
		}
	}

	if include := directives.ForName("include"); include != nil {
		if includeIf, ok := directiveArgument(ctx, include, "if"); ok {
			if b, ok := includeIf.(bool); ok && !b {
				return false
			}
		}
	}

	return true
}

func directiveArgument(ctx *Context, directive *language.Directive, name string) (any, bool) {
	for _, arg := range directive.Arguments {
		if arg.Name == name {
			return valueFromAST(arg.Value, ctx.Variables)
		}
	}
	return nil, false
}

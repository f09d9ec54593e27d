package schema

import (
	"sort"

	language "github.com/hanpama/graphcache/internal/language"
)

// BuildFromAST converts a validated gqlparser schema into the cache's schema model.
func BuildFromAST(src *language.Schema) *Schema {
	s := &Schema{Types: make(map[string]*Type, len(src.Types))}
	if src.Query != nil {
		s.QueryType = src.Query.Name
	}
	if src.Mutation != nil {
		s.MutationType = src.Mutation.Name
	}
	if src.Subscription != nil {
		s.SubscriptionType = src.Subscription.Name
	}

	for name, def := range src.Types {
		t := &Type{Name: name, Kind: buildKind(def.Kind)}
		for _, fd := range def.Fields {
			t.Fields = append(t.Fields, buildField(fd))
		}
		t.Interfaces = append(t.Interfaces, def.Interfaces...)
		sort.Strings(t.Interfaces)
		if t.Kind == TypeKindInterface || t.Kind == TypeKindUnion {
			for _, pt := range src.PossibleTypes[name] {
				t.PossibleTypes = append(t.PossibleTypes, pt.Name)
			}
			sort.Strings(t.PossibleTypes)
		}
		s.Types[name] = t
	}
	return s
}

// BuildFromSDL parses SDL and returns the corresponding Schema.
func BuildFromSDL(sdl string) (*Schema, error) {
	src, err := language.LoadSchema("schema.graphql", sdl)
	if err != nil {
		return nil, err
	}
	return BuildFromAST(src), nil
}

func buildKind(k language.DefinitionKind) TypeKind {
	switch k {
	case language.Object:
		return TypeKindObject
	case language.Interface:
		return TypeKindInterface
	case language.Union:
		return TypeKindUnion
	case language.Enum:
		return TypeKindEnum
	case language.InputObject:
		return TypeKindInputObject
	default:
		return TypeKindScalar
	}
}

func buildField(def *language.FieldDefinition) *Field {
	f := &Field{Name: def.Name, Type: buildTypeRef(def.Type)}
	for _, arg := range def.Arguments {
		in := &InputValue{Name: arg.Name, Type: buildTypeRef(arg.Type)}
		if arg.DefaultValue != nil {
			in.DefaultValue, _ = arg.DefaultValue.Value(nil)
		}
		f.Arguments = append(f.Arguments, in)
	}
	return f
}

func buildTypeRef(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(buildTypeRef(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	return ListType(buildTypeRef(t.Elem))
}

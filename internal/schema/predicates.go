package schema

// Predicates answers the schema questions the cache asks during traversal.
// A nil *Predicates is valid and knows nothing about the schema.
type Predicates struct {
	schema *Schema
}

func NewPredicates(s *Schema) *Predicates {
	if s == nil {
		return nil
	}
	return &Predicates{schema: s}
}

// IsSubtype reports whether the concrete type satisfies the type condition,
// either by name, as a member of a union, or as an implementation of an interface.
func (p *Predicates) IsSubtype(condition, concrete string) bool {
	if condition == concrete {
		return true
	}
	if p == nil {
		return false
	}
	abstract := p.schema.Types[condition]
	if abstract == nil {
		return false
	}
	switch abstract.Kind {
	case TypeKindUnion, TypeKindInterface:
		for _, name := range abstract.PossibleTypes {
			if name == concrete {
				return true
			}
		}
	}
	// Interfaces may extend interfaces; PossibleTypes only lists objects.
	if t := p.schema.Types[concrete]; t != nil {
		for _, iface := range t.Interfaces {
			if iface == condition {
				return true
			}
		}
	}
	return false
}

// IsFieldAvailableOnType reports whether typename declares field.
// Unknown types are treated as permissive.
func (p *Predicates) IsFieldAvailableOnType(typename, field string) bool {
	if p == nil || field == "__typename" {
		return true
	}
	t := p.schema.Types[typename]
	if t == nil {
		return true
	}
	return t.FieldByName(field) != nil
}

// RootTypes returns the query, mutation and subscription root names, falling
// back to the conventional names for roots the schema does not declare.
func (p *Predicates) RootTypes() (query, mutation, subscription string) {
	query, mutation, subscription = "Query", "Mutation", "Subscription"
	if p == nil {
		return
	}
	if p.schema.QueryType != "" {
		query = p.schema.QueryType
	}
	if p.schema.MutationType != "" {
		mutation = p.schema.MutationType
	}
	if p.schema.SubscriptionType != "" {
		subscription = p.schema.SubscriptionType
	}
	return
}

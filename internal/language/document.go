package language

// MainOperation picks the operation to run: the named one, or the only one when
// name is empty. Returns nil when the choice is ambiguous or missing.
func MainOperation(doc *QueryDocument, name string) *OperationDefinition {
	if doc == nil {
		return nil
	}
	if name == "" && len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// Fragments indexes a document's fragment definitions by name.
func Fragments(doc *QueryDocument) map[string]*FragmentDefinition {
	out := make(map[string]*FragmentDefinition, len(doc.Fragments))
	for _, f := range doc.Fragments {
		if f != nil {
			out[f.Name] = f
		}
	}
	return out
}

// ResponseName is the key a field occupies in response data.
func ResponseName(f *Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// AddTypenames appends a __typename selection to every nested selection set
// that lacks one. Operation root selection sets are left alone.
func AddTypenames(doc *QueryDocument) {
	for _, op := range doc.Operations {
		addTypenamesToChildren(op.SelectionSet)
	}
	for _, f := range doc.Fragments {
		f.SelectionSet = withTypename(f.SelectionSet)
	}
}

func addTypenamesToChildren(set SelectionSet) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *Field:
			if len(s.SelectionSet) > 0 {
				s.SelectionSet = withTypename(s.SelectionSet)
			}
		case *InlineFragment:
			addTypenamesToChildren(s.SelectionSet)
		}
	}
}

func withTypename(set SelectionSet) SelectionSet {
	addTypenamesToChildren(set)
	for _, sel := range set {
		if f, ok := sel.(*Field); ok && ResponseName(f) == "__typename" {
			return set
		}
	}
	return append(set, &Field{Name: "__typename"})
}

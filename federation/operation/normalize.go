package operation

import "github.com/n9te9/graphql-parser/ast"

// Normalize inlines named fragment spreads and drops repeated field
// selections. Selections keep the order in which the client wrote them;
// they are not sorted into a canonical order.
//
// Inline fragments (`... on Type { ... }`) are kept, not flattened: their
// type condition is the response projector's only signal for per-element
// dispatch at abstract positions, so discarding it here would make
// type-aware projection impossible downstream.
func Normalize(doc *ast.Document) *ast.Document {
	op := operationFromDocument(doc)
	if op == nil {
		return doc
	}

	fragmentDefs := collectFragmentDefinitions(doc)
	newOp := &ast.OperationDefinition{
		Operation:    op.Operation,
		SelectionSet: normalizeSelections(op.SelectionSet, fragmentDefs),
	}

	// Fragment definitions are dropped: every spread has been inlined into
	// newOp, so nothing downstream needs to look them up by name anymore.
	defs := doc.Definitions[:0:0]
	for _, def := range doc.Definitions {
		switch def.(type) {
		case *ast.FragmentDefinition:
			continue
		case *ast.OperationDefinition:
			defs = append(defs, newOp)
		default:
			defs = append(defs, def)
		}
	}

	return &ast.Document{Definitions: defs}
}

// normalizeSelections inlines fragment spreads, recurses into field and
// inline-fragment sub-selections, and drops duplicate field selections
// (same alias/name pair) so repeated client syntax collapses to its first
// occurrence.
func normalizeSelections(selections []ast.Selection, fragmentDefs map[string]*ast.FragmentDefinition) []ast.Selection {
	result := make([]ast.Selection, 0, len(selections))
	seenFields := make(map[string]bool)

	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			key := s.Name.String()
			if s.Alias != nil && s.Alias.String() != "" {
				key = s.Alias.String() + ":" + key
			}
			if seenFields[key] {
				continue
			}
			seenFields[key] = true

			newField := &ast.Field{
				Alias:      s.Alias,
				Name:       s.Name,
				Arguments:  s.Arguments,
				Directives: s.Directives,
			}
			if len(s.SelectionSet) > 0 {
				newField.SelectionSet = normalizeSelections(s.SelectionSet, fragmentDefs)
			}
			result = append(result, newField)

		case *ast.InlineFragment:
			result = append(result, &ast.InlineFragment{
				TypeCondition: s.TypeCondition,
				Directives:    s.Directives,
				SelectionSet:  normalizeSelections(s.SelectionSet, fragmentDefs),
			})

		case *ast.FragmentSpread:
			fragDef, ok := fragmentDefs[s.Name.String()]
			if !ok {
				continue
			}
			result = append(result, normalizeSelections(fragDef.SelectionSet, fragmentDefs)...)

		default:
			result = append(result, sel)
		}
	}

	return result
}

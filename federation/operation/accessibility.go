package operation

import (
	"fmt"

	"github.com/n9te9/federation-router/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
)

// ValidateAccessibility rejects any queried field marked @inaccessible in
// the supergraph, the same validation the gateway ran inline before the
// operation pipeline existed as its own stage.
func ValidateAccessibility(doc *ast.Document, superGraph *graph.SuperGraphV2) error {
	for _, def := range doc.Definitions {
		opDef, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}

		rootTypeName := "Query"
		switch opDef.Operation {
		case ast.Mutation:
			rootTypeName = "Mutation"
		case ast.Subscription:
			rootTypeName = "Subscription"
		}

		if err := validateSelectionSet(opDef.SelectionSet, rootTypeName, superGraph); err != nil {
			return err
		}
	}
	return nil
}

func validateSelectionSet(selSet []ast.Selection, parentTypeName string, superGraph *graph.SuperGraphV2) error {
	for _, sel := range selSet {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()
			if fieldName == "__typename" || fieldName == "__schema" || fieldName == "__type" {
				continue
			}

			if err := checkFieldAccessibility(parentTypeName, fieldName, superGraph); err != nil {
				return err
			}

			if nextTypeName := fieldTypeName(parentTypeName, fieldName, superGraph); nextTypeName != "" {
				if err := validateSelectionSet(s.SelectionSet, nextTypeName, superGraph); err != nil {
					return err
				}
			}

		case *ast.InlineFragment:
			typeCondition := parentTypeName
			if s.TypeCondition != nil && s.TypeCondition.String() != "" {
				typeCondition = s.TypeCondition.String()
			}
			if err := validateSelectionSet(s.SelectionSet, typeCondition, superGraph); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkFieldAccessibility(typeName, fieldName string, superGraph *graph.SuperGraphV2) error {
	for _, subGraph := range superGraph.SubGraphs {
		if entity, exists := subGraph.GetEntity(typeName); exists {
			if field, ok := entity.Fields[fieldName]; ok && field.IsInaccessible() {
				return fmt.Errorf("Cannot query field %q on type %q", fieldName, typeName)
			}
		}

		for _, def := range subGraph.Schema.Definitions {
			objDef, ok := def.(*ast.ObjectTypeDefinition)
			if !ok || objDef.Name.String() != typeName {
				continue
			}
			for _, f := range objDef.Fields {
				if f.Name.String() != fieldName {
					continue
				}
				for _, d := range f.Directives {
					if d.Name == "inaccessible" {
						return fmt.Errorf("Cannot query field %q on type %q", fieldName, typeName)
					}
				}
			}
		}
	}
	return nil
}

func fieldTypeName(typeName, fieldName string, superGraph *graph.SuperGraphV2) string {
	for _, def := range superGraph.Schema.Definitions {
		objDef, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || objDef.Name.String() != typeName {
			continue
		}
		for _, field := range objDef.Fields {
			if field.Name.String() == fieldName {
				return unwrapTypeName(field.Type)
			}
		}
	}
	return ""
}

func unwrapTypeName(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return unwrapTypeName(typ.Type)
	case *ast.NonNullType:
		return unwrapTypeName(typ.Type)
	}
	return ""
}

package operation

import (
	"fmt"
	"strings"

	"github.com/n9te9/federation-router/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
)

// Mode selects how Authorize handles a field the caller isn't allowed to
// see.
type Mode string

const (
	// ModeFilter removes unauthorized fields from the operation, letting
	// the rest of the request proceed; removed fields are reported back so
	// the caller can surface a per-field error and null the response
	// position.
	ModeFilter Mode = "filter"
	// ModeReject aborts the whole operation if any field is unauthorized.
	ModeReject Mode = "reject"
)

// UnauthorizedField names one field Authorize removed or rejected on,
// identified by its response path (alias-aware).
type UnauthorizedField struct {
	Path []string
}

// AuthError is returned by Authorize in ModeReject when any field fails
// its authorization check.
type AuthError struct {
	Fields []UnauthorizedField
}

func (e *AuthError) Error() string {
	if len(e.Fields) == 0 {
		return "unauthorized"
	}
	return fmt.Sprintf("unauthorized: %s", strings.Join(pathString(e.Fields[0].Path), "."))
}

func pathString(path []string) []string {
	if len(path) == 0 {
		return []string{"<root>"}
	}
	return path
}

// Authorize walks doc's operation against claims (nil if the request had no
// valid token), applying each @authenticated/@requiresScopes field's
// requirement. In ModeFilter it rewrites the operation's selection set in
// place, dropping unauthorized fields, and returns what it dropped. In
// ModeReject it leaves the document untouched and returns an *AuthError on
// the first pass that found any violation.
func Authorize(doc *ast.Document, superGraph *graph.SuperGraphV2, claims *Claims, mode Mode) ([]UnauthorizedField, error) {
	op := operationFromDocument(doc)
	if op == nil {
		return nil, nil
	}

	rootTypeName := "Query"
	switch op.Operation {
	case ast.Mutation:
		rootTypeName = "Mutation"
	case ast.Subscription:
		rootTypeName = "Subscription"
	}

	newSelections, removed := authorizeSelectionSet(op.SelectionSet, rootTypeName, superGraph, claims, nil)

	if mode == ModeReject && len(removed) > 0 {
		return removed, &AuthError{Fields: removed}
	}

	op.SelectionSet = newSelections
	return removed, nil
}

func authorizeSelectionSet(
	selections []ast.Selection,
	parentTypeName string,
	superGraph *graph.SuperGraphV2,
	claims *Claims,
	basePath []string,
) ([]ast.Selection, []UnauthorizedField) {
	kept := make([]ast.Selection, 0, len(selections))
	var removed []UnauthorizedField

	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()
			if fieldName == "__typename" || fieldName == "__schema" || fieldName == "__type" {
				kept = append(kept, s)
				continue
			}

			lookupKey := fieldName
			if s.Alias != nil && s.Alias.String() != "" {
				lookupKey = s.Alias.String()
			}
			path := append(append([]string{}, basePath...), lookupKey)

			authenticated, scopeGroups := fieldAuthRequirement(parentTypeName, fieldName, superGraph)
			if !isAuthorized(authenticated, scopeGroups, claims) {
				removed = append(removed, UnauthorizedField{Path: path})
				continue
			}

			if len(s.SelectionSet) > 0 {
				nextType := fieldTypeName(parentTypeName, fieldName, superGraph)
				newSub, rem := authorizeSelectionSet(s.SelectionSet, nextType, superGraph, claims, path)
				removed = append(removed, rem...)
				kept = append(kept, &ast.Field{
					Alias:        s.Alias,
					Name:         s.Name,
					Arguments:    s.Arguments,
					Directives:   s.Directives,
					SelectionSet: newSub,
				})
			} else {
				kept = append(kept, s)
			}

		case *ast.InlineFragment:
			typeCondition := parentTypeName
			if s.TypeCondition != nil && s.TypeCondition.String() != "" {
				typeCondition = s.TypeCondition.String()
			}
			newSub, rem := authorizeSelectionSet(s.SelectionSet, typeCondition, superGraph, claims, basePath)
			removed = append(removed, rem...)
			kept = append(kept, &ast.InlineFragment{
				TypeCondition: s.TypeCondition,
				Directives:    s.Directives,
				SelectionSet:  newSub,
			})

		default:
			kept = append(kept, sel)
		}
	}

	return kept, removed
}

func isAuthorized(authenticated bool, scopeGroups [][]string, claims *Claims) bool {
	if authenticated && claims == nil {
		return false
	}
	if len(scopeGroups) == 0 {
		return true
	}
	for _, group := range scopeGroups {
		if claims.HasScope(group) {
			return true
		}
	}
	return false
}

// fieldAuthRequirement reports the @authenticated/@requiresScopes
// requirement declared on (typeName, fieldName). Only entity (@key) types
// carry parsed Field metadata for these directives today; a field on a
// plain object type with no @key is treated as having no requirement.
func fieldAuthRequirement(typeName, fieldName string, superGraph *graph.SuperGraphV2) (authenticated bool, scopeGroups [][]string) {
	for _, subGraph := range superGraph.SubGraphs {
		entity, ok := subGraph.GetEntity(typeName)
		if !ok {
			continue
		}
		field, ok := entity.Fields[fieldName]
		if !ok {
			continue
		}
		if field.IsAuthenticated() {
			authenticated = true
		}
		if groups := field.RequiredScopes(); len(groups) > 0 {
			scopeGroups = append(scopeGroups, groups...)
		}
	}
	return
}

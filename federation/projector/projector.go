// Package projector reshapes an executor's merged response tree into
// exactly the fields the client selected, in selection order, with
// type-aware dispatch at abstract positions.
package projector

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-parser/ast"
)

// OrderedObject is a JSON object that marshals its keys in insertion order,
// matching the client's selection-set order rather than Go map iteration
// (which the standard library sorts alphabetically).
type OrderedObject struct {
	keys   []string
	values map[string]interface{}
}

// NewOrderedObject returns an empty OrderedObject.
func NewOrderedObject() *OrderedObject {
	return &OrderedObject{values: make(map[string]interface{})}
}

// Set appends key if new, or overwrites its value in place if already set
// (an inline fragment that repeats a sibling field should not duplicate it).
func (o *OrderedObject) Set(key string, value interface{}) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value stored at key and whether it was set.
func (o *OrderedObject) Get(key string) (interface{}, bool) {
	v, ok := o.values[key]
	return v, ok
}

// merge copies another OrderedObject's keys into this one, preserving the
// receiver's existing order for shared keys and appending new ones in the
// order they appear on other. Used when an inline fragment's matched
// selections must be folded into the same object as its siblings.
func (o *OrderedObject) merge(other *OrderedObject) {
	for _, k := range other.keys {
		o.Set(k, other.values[k])
	}
}

// MarshalJSON implements json.Marshaler, emitting keys in insertion order.
func (o *OrderedObject) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Project walks data according to doc's single operation selection set,
// returning a value that marshals (via goccy/go-json) to exactly the
// requested fields in the requested order. data is the executor's merged
// response tree (plan.Execute's "data" map).
func Project(doc *ast.Document, data map[string]interface{}) (*OrderedObject, error) {
	op := operationFromDocument(doc)
	if op == nil {
		return nil, fmt.Errorf("no operation found in document")
	}

	fragmentDefs := collectFragments(doc)
	return projectObject(data, op.SelectionSet, fragmentDefs), nil
}

func operationFromDocument(doc *ast.Document) *ast.OperationDefinition {
	if doc == nil {
		return nil
	}
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}
	return nil
}

func collectFragments(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if fragDef, ok := def.(*ast.FragmentDefinition); ok {
			fragments[fragDef.Name.String()] = fragDef
		}
	}
	return fragments
}

// projectValue dispatches on the merged tree's dynamic shape: objects are
// projected field-by-field, list elements are each projected independently
// (so a list of an abstract type dispatches per-element by __typename), and
// scalars pass through untouched.
func projectValue(value interface{}, selections []ast.Selection, fragmentDefs map[string]*ast.FragmentDefinition) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = projectValue(item, selections, fragmentDefs)
		}
		return result
	case map[string]interface{}:
		return projectObject(v, selections, fragmentDefs)
	default:
		return v
	}
}

// projectObject emits an OrderedObject for obj containing exactly the
// selected fields, in selection order. At the object's own position it
// reads __typename (when present) to decide whether each inline fragment's
// type condition matches, so a union/interface list's elements each take
// their own concrete-type sub-selection.
func projectObject(obj map[string]interface{}, selections []ast.Selection, fragmentDefs map[string]*ast.FragmentDefinition) *OrderedObject {
	if obj == nil {
		return nil
	}

	typename, _ := obj["__typename"].(string)
	out := NewOrderedObject()

	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			projectField(out, obj, s, fragmentDefs)

		case *ast.InlineFragment:
			cond := ""
			if s.TypeCondition != nil {
				cond = s.TypeCondition.String()
			}
			// No __typename on the object (non-abstract parent) or no
			// condition on the fragment both mean "always matches".
			if cond == "" || typename == "" || cond == typename {
				out.merge(projectObject(obj, s.SelectionSet, fragmentDefs))
			}

		case *ast.FragmentSpread:
			fragDef, ok := fragmentDefs[s.Name.String()]
			if !ok {
				continue
			}
			// Fragment spreads are applied unconditionally: by the time a
			// document reaches the projector it has already passed through
			// the operation pipeline's Normalize stage, which inlines named
			// fragments into the selection set it hands the planner/executor.
			// This path only runs for documents that bypassed normalization
			// (e.g. constructed directly in tests).
			out.merge(projectObject(obj, fragDef.SelectionSet, fragmentDefs))
		}
	}

	return out
}

func projectField(out *OrderedObject, obj map[string]interface{}, field *ast.Field, fragmentDefs map[string]*ast.FragmentDefinition) {
	fieldName := field.Name.String()
	lookupKey := fieldName
	if field.Alias != nil && field.Alias.String() != "" {
		lookupKey = field.Alias.String()
	}

	if fieldName == "__typename" {
		out.Set(lookupKey, obj["__typename"])
		return
	}

	value, exists := obj[fieldName]
	if !exists && lookupKey != fieldName {
		value, exists = obj[lookupKey]
	}
	if !exists {
		out.Set(lookupKey, nil)
		return
	}

	if len(field.SelectionSet) > 0 {
		out.Set(lookupKey, projectValue(value, field.SelectionSet, fragmentDefs))
	} else {
		out.Set(lookupKey, value)
	}
}

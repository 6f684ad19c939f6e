package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Kind is the structural type of a tool parameter. The set is closed:
// TranslateSchema maps every JSON Schema type onto one of these.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindArray
	KindObject
)

// String returns the JSON Schema type name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "string"
	}
}

// kindOf maps a JSON Schema type name to a Kind. Unknown or absent
// types fall back to KindString.
func kindOf(typeName string) Kind {
	switch typeName {
	case "number", "integer":
		return KindNumber
	case "boolean":
		return KindBoolean
	case "array":
		return KindArray
	case "object":
		return KindObject
	default:
		return KindString
	}
}

// Field describes one tool parameter.
type Field struct {
	Kind        Kind
	Description string
	Required    bool
}

// ValidationSchema is the structural schema of a tool's arguments.
type ValidationSchema struct {
	Fields map[string]Field
}

// TranslateSchema converts a JSON-Schema-like parameter description
// into a ValidationSchema. Only the top-level "properties" and
// "required" keys are consulted. A nil or empty description yields a
// schema with no fields.
//
// TranslateSchema is pure: equal inputs always give equal outputs.
func TranslateSchema(raw map[string]any) ValidationSchema {
	schema := ValidationSchema{Fields: map[string]Field{}}
	if raw == nil {
		return schema
	}

	required := stringSet(raw["required"])

	props, _ := raw["properties"].(map[string]any)
	for name, p := range props {
		prop, _ := p.(map[string]any)
		desc, _ := prop["description"].(string)
		schema.Fields[name] = Field{
			Kind:        kindOf(typeName(prop["type"])),
			Description: desc,
			Required:    required[name],
		}
	}
	return schema
}

// typeName extracts a type name from a "type" value, which is either a
// string or a list of strings such as ["string", "null"]. For a list
// the first non-null entry wins.
func typeName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "null" {
				return s
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s
			}
		}
	}
	return ""
}

// stringSet converts a decoded JSON list (or a []string built in Go)
// into a set. Non-string entries are ignored.
func stringSet(v any) map[string]bool {
	set := map[string]bool{}
	switch list := v.(type) {
	case []any:
		for _, e := range list {
			if s, ok := e.(string); ok {
				set[s] = true
			}
		}
	case []string:
		for _, s := range list {
			set[s] = true
		}
	}
	return set
}

// RequiredFields returns the names of required fields, sorted.
func (s ValidationSchema) RequiredFields() []string {
	var names []string
	for name, f := range s.Fields {
		if f.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// JSONSchema renders the schema as a canonical JSON Schema object, the
// form the tool registry hands to the model.
func (s ValidationSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	for name, f := range s.Fields {
		p := map[string]any{"type": f.Kind.String()}
		switch f.Kind {
		case KindArray:
			p["items"] = map[string]any{}
		case KindObject:
			p["additionalProperties"] = true
		}
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[name] = p
	}

	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := s.RequiredFields(); len(req) > 0 {
		out["required"] = req
	}
	return out
}

// ValidationError reports an argument that does not fit the schema.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Field, e.Reason)
}

// Validate checks args against the schema: every required field must be
// present and every known field must have the right kind. Fields the
// schema does not mention are left for the remote to judge. All
// problems are reported, ordered by field name.
func (s ValidationSchema) Validate(args map[string]any) error {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		f := s.Fields[name]
		v, ok := args[name]
		if !ok || v == nil {
			if f.Required {
				errs = append(errs, &ValidationError{Field: name, Reason: "is required"})
			}
			continue
		}
		if !f.Kind.accepts(v) {
			errs = append(errs, &ValidationError{
				Field:  name,
				Reason: fmt.Sprintf("want %s, got %T", f.Kind, v),
			})
		}
	}
	return errors.Join(errs...)
}

// accepts reports whether a decoded JSON value (or a Go value built by
// a caller) fits the kind.
func (k Kind) accepts(v any) bool {
	switch k {
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, json.Number:
			return true
		}
		return false
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindArray:
		switch v.(type) {
		case []any, []string, []float64, []map[string]any:
			return true
		}
		return false
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		_, ok := v.(string)
		return ok
	}
}

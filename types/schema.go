package types

import "slices"

// Kind is a JSON Schema type name.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Schema describes tool arguments. Only the keywords the argument validator
// understands are modelled; anything else in a parsed document is dropped.
type Schema struct {
	Type        Kind   `json:"type,omitempty"`
	Description string `json:"description,omitempty"`

	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`

	Enum      []any    `json:"enum,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	Default   any      `json:"default,omitempty"`
}

// Prop is one named member of an object schema.
type Prop struct {
	Name     string
	Schema   *Schema
	Required bool
}

// Field declares an optional property.
func Field(name string, s *Schema) Prop { return Prop{Name: name, Schema: s} }

// Need declares a required property.
func Need(name string, s *Schema) Prop { return Prop{Name: name, Schema: s, Required: true} }

// Object builds a closed object: unknown argument names are rejected.
func Object(props ...Prop) *Schema {
	closed := false
	s := &Schema{
		Type:                 KindObject,
		Properties:           make(map[string]*Schema, len(props)),
		AdditionalProperties: &closed,
	}
	for _, p := range props {
		s.Properties[p.Name] = p.Schema
		if p.Required && !slices.Contains(s.Required, p.Name) {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

func String() *Schema  { return &Schema{Type: KindString} }
func Number() *Schema  { return &Schema{Type: KindNumber} }
func Integer() *Schema { return &Schema{Type: KindInteger} }
func Boolean() *Schema { return &Schema{Type: KindBoolean} }

// ArrayOf items must all satisfy item.
func ArrayOf(item *Schema) *Schema { return &Schema{Type: KindArray, Items: item} }

// OneOf is a string restricted to values.
func OneOf(values ...string) *Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &Schema{Type: KindString, Enum: enum}
}

func (s *Schema) Describe(desc string) *Schema {
	s.Description = desc
	return s
}

// Match sets a regular expression a string value must match.
func (s *Schema) Match(pattern string) *Schema {
	s.Pattern = pattern
	return s
}

// Len bounds a string's length in characters. max <= 0 leaves it open.
func (s *Schema) Len(min, max int) *Schema {
	s.MinLength = &min
	if max > 0 {
		s.MaxLength = &max
	}
	return s
}

// Between bounds a number, inclusive.
func (s *Schema) Between(min, max float64) *Schema {
	s.Minimum, s.Maximum = &min, &max
	return s
}

// Or sets the value assumed when the argument is absent.
func (s *Schema) Or(v any) *Schema {
	s.Default = v
	return s
}

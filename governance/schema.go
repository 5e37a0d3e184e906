package governance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// FieldError one rejected argument. Path is dotted with [i] for array
// elements; empty means the arguments document itself.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Path == "" {
		return "arguments " + e.Message
	}
	return e.Path + " " + e.Message
}

// SchemaError every problem found in one arguments document. Required
// fields come first, then the remaining problems ordered by argument name.
type SchemaError struct {
	Errors []FieldError `json:"errors"`
}

func (e *SchemaError) Error() string {
	if len(e.Errors) == 0 {
		return "arguments rejected"
	}
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

var patterns sync.Map // string -> *regexp.Regexp

func pattern(expr string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patterns.Store(expr, re)
	return re, nil
}

// ValidateArguments checks a tool call's JSON arguments. Empty input is
// treated as {}. A nil schema accepts anything.
func ValidateArguments(args json.RawMessage, schema *types.Schema) error {
	if schema == nil {
		return nil
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}

	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &SchemaError{Errors: []FieldError{{Message: "are not valid JSON: " + err.Error()}}}
	}

	var c argCheck
	c.value("", doc, schema)
	if len(c.problems) > 0 {
		return &SchemaError{Errors: c.problems}
	}
	return nil
}

type argCheck struct {
	problems []FieldError
}

func (c *argCheck) fail(path, format string, a ...any) {
	c.problems = append(c.problems, FieldError{Path: path, Message: fmt.Sprintf(format, a...)})
}

func (c *argCheck) value(path string, v any, s *types.Schema) {
	if s == nil {
		return
	}
	if len(s.Enum) > 0 && !slices.ContainsFunc(s.Enum, func(e any) bool { return sameValue(v, e) }) {
		c.fail(path, "must be one of %v", s.Enum)
	}

	switch s.Type {
	case types.KindString:
		c.text(path, v, s)
	case types.KindNumber, types.KindInteger:
		c.number(path, v, s)
	case types.KindBoolean:
		if _, ok := v.(bool); !ok {
			c.fail(path, "must be a boolean, got %s", jsonKind(v))
		}
	case types.KindObject:
		c.object(path, v, s)
	case types.KindArray:
		c.array(path, v, s)
	}
}

func (c *argCheck) text(path string, v any, s *types.Schema) {
	str, ok := v.(string)
	if !ok {
		c.fail(path, "must be a string, got %s", jsonKind(v))
		return
	}
	n := utf8.RuneCountInString(str)
	if s.MinLength != nil && n < *s.MinLength {
		c.fail(path, "must be at least %d characters", *s.MinLength)
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		c.fail(path, "must be at most %d characters", *s.MaxLength)
	}
	if s.Pattern == "" {
		return
	}
	re, err := pattern(s.Pattern)
	switch {
	case err != nil:
		c.fail(path, "has an unusable pattern %q: %v", s.Pattern, err)
	case !re.MatchString(str):
		c.fail(path, "must match %s", s.Pattern)
	}
}

func (c *argCheck) number(path string, v any, s *types.Schema) {
	f, ok := asFloat(v)
	if !ok {
		c.fail(path, "must be %s, got %s", withArticle(s.Type), jsonKind(v))
		return
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		c.fail(path, "must be a finite number")
		return
	}
	if s.Type == types.KindInteger && f != math.Trunc(f) {
		c.fail(path, "must be an integer, got %s", formatNum(f))
		return
	}
	if s.Minimum != nil && f < *s.Minimum {
		c.fail(path, "must be >= %s, got %s", formatNum(*s.Minimum), formatNum(f))
	}
	if s.Maximum != nil && f > *s.Maximum {
		c.fail(path, "must be <= %s, got %s", formatNum(*s.Maximum), formatNum(f))
	}
}

func (c *argCheck) object(path string, v any, s *types.Schema) {
	obj, ok := v.(map[string]any)
	if !ok {
		c.fail(path, "must be an object, got %s", jsonKind(v))
		return
	}

	for _, name := range s.Required {
		val, present := obj[name]
		switch {
		case !present:
			c.fail(child(path, name), "is required")
		case val == nil:
			c.fail(child(path, name), "must not be null")
		}
	}

	closed := s.AdditionalProperties != nil && !*s.AdditionalProperties
	for _, name := range slices.Sorted(maps.Keys(obj)) {
		prop, known := s.Properties[name]
		switch {
		case known:
			c.value(child(path, name), obj[name], prop)
		case closed:
			c.fail(child(path, name), "is not an accepted argument")
		}
	}
}

func (c *argCheck) array(path string, v any, s *types.Schema) {
	items, ok := v.([]any)
	if !ok {
		c.fail(path, "must be an array, got %s", jsonKind(v))
		return
	}
	for i, item := range items {
		c.value(path+"["+strconv.Itoa(i)+"]", item, s.Items)
	}
}

func child(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// sameValue numbers compare by value so 1 and 1.0 match an enum entry
func sameValue(a, b any) bool {
	fa, aNum := asFloat(a)
	fb, bNum := asFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func withArticle(k types.Kind) string {
	if k == types.KindInteger || k == types.KindObject || k == types.KindArray {
		return "an " + string(k)
	}
	return "a " + string(k)
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number, float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonschema"
)

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
)

// Field describes one property of a tool input object.
type Field struct {
	Name      string
	Type      FieldType
	Desc      string
	Required  bool
	MinLength int
	MaxLength int
	Minimum   *int64
	Maximum   *int64
	Enum      []string
}

// Schema is the input contract of a tool. Inputs are closed objects: fields
// not listed here are rejected. AnyOf lists groups of fields of which at least
// one must be present.
type Schema struct {
	Fields []Field
	AnyOf  []string
}

func minimum(v int64) *int64 { return &v }

func maximum(v int64) *int64 { return &v }

// JSONSchema renders the schema as a draft 2020-12 JSON Schema document.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := make([]string, 0)
	for _, f := range s.Fields {
		p := map[string]any{"type": string(f.Type)}
		if f.Desc != "" {
			p["description"] = f.Desc
		}
		if f.MinLength > 0 {
			p["minLength"] = f.MinLength
		}
		if f.MaxLength > 0 {
			p["maxLength"] = f.MaxLength
		}
		if f.Minimum != nil {
			p["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			p["maximum"] = *f.Maximum
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}

	doc := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	if len(s.AnyOf) > 0 {
		branches := make([]any, 0, len(s.AnyOf))
		for _, name := range s.AnyOf {
			branches = append(branches, map[string]any{"required": []string{name}})
		}
		doc["anyOf"] = branches
	}
	return doc
}

func (s Schema) compile() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// paramDesc is the field description shown to the model. ParameterInfo has
// no slots for length or range bounds, so they are carried in the text.
func (f Field) paramDesc() string {
	var bounds []string
	switch {
	case f.MinLength > 0 && f.MaxLength > 0:
		bounds = append(bounds, fmt.Sprintf("%d to %d characters", f.MinLength, f.MaxLength))
	case f.MaxLength > 0:
		bounds = append(bounds, fmt.Sprintf("at most %d characters", f.MaxLength))
	case f.MinLength > 0:
		bounds = append(bounds, fmt.Sprintf("at least %d characters", f.MinLength))
	}
	if f.Minimum != nil {
		bounds = append(bounds, fmt.Sprintf("minimum %d", *f.Minimum))
	}
	if f.Maximum != nil {
		bounds = append(bounds, fmt.Sprintf("maximum %d", *f.Maximum))
	}
	if len(bounds) == 0 {
		return f.Desc
	}
	note := "(" + strings.Join(bounds, ", ") + ")"
	if f.Desc == "" {
		return note
	}
	return f.Desc + " " + note
}

// toolDesc appends the at-least-one-of rule to a tool description.
func (s Schema) toolDesc(desc string) string {
	if len(s.AnyOf) == 0 {
		return desc
	}
	rule := fmt.Sprintf("Provide at least one of: %s.", strings.Join(s.AnyOf, ", "))
	if desc == "" {
		return rule
	}
	return desc + " " + rule
}

// params converts the schema to the parameter form eino hands the model.
func (s Schema) params() *schema.ParamsOneOf {
	if len(s.Fields) == 0 {
		return schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{})
	}
	out := make(map[string]*schema.ParameterInfo, len(s.Fields))
	for _, f := range s.Fields {
		info := &schema.ParameterInfo{
			Type:     einoType(f.Type),
			Desc:     f.paramDesc(),
			Required: f.Required,
		}
		if len(f.Enum) > 0 {
			info.Enum = append([]string(nil), f.Enum...)
		}
		out[f.Name] = info
	}
	return schema.NewParamsOneOfByParams(out)
}

func einoType(t FieldType) schema.DataType {
	switch t {
	case TypeInteger:
		return schema.Integer
	case TypeBoolean:
		return schema.Boolean
	default:
		return schema.String
	}
}

func (s Schema) names() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

// describe flattens a failed evaluation into a message the model can act on.
func (s Schema) describe(res *jsonschema.EvaluationResult, input map[string]any) string {
	known := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		known[f.Name] = struct{}{}
	}
	for key := range input {
		if _, ok := known[key]; !ok {
			return fmt.Sprintf("unknown field %q; accepted fields are %s", key, strings.Join(s.names(), ", "))
		}
	}
	for _, f := range s.Fields {
		if f.Required {
			if _, ok := input[f.Name]; !ok {
				return fmt.Sprintf("field %q is required", f.Name)
			}
		}
		if str, ok := input[f.Name].(string); ok && f.MaxLength > 0 && len([]rune(str)) > f.MaxLength {
			return fmt.Sprintf("field %q must be at most %d characters", f.Name, f.MaxLength)
		}
	}
	if len(s.AnyOf) > 0 {
		present := false
		for _, name := range s.AnyOf {
			if _, ok := input[name]; ok {
				present = true
				break
			}
		}
		if !present {
			return fmt.Sprintf("one of %s is required", strings.Join(s.AnyOf, ", "))
		}
	}

	if res == nil || len(res.Errors) == 0 {
		return "input does not match the tool schema"
	}
	keys := make([]string, 0, len(res.Errors))
	for k := range res.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, res.Errors[k]))
	}
	return strings.Join(parts, "; ")
}

package types

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// The generation service is reliable about top-level keys but not about the
// shape of nested values (a list where a string was asked for, a number for a
// string). The types in this file accept any JSON shape and flatten it into
// text deterministically so a payload that passed key validation can always
// be represented.

// Text is a string field that tolerates non-string JSON values
type Text string

// UnmarshalJSON implements json.Unmarshaler
func (t *Text) UnmarshalJSON(data []byte) error {
	v, err := decodeLoose(data)
	if err != nil {
		return err
	}
	*t = Text(flatten(v))
	return nil
}

// String returns the underlying text
func (t Text) String() string { return string(t) }

// TextList is a list of strings that tolerates a single string or an object
type TextList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *TextList) UnmarshalJSON(data []byte) error {
	v, err := decodeLoose(data)
	if err != nil {
		return err
	}
	var out []string
	switch x := v.(type) {
	case nil:
	case []any:
		for _, item := range x {
			if s := strings.TrimSpace(flatten(item)); s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		for _, k := range sortedKeys(x) {
			out = append(out, k+": "+flatten(x[k]))
		}
	default:
		if s := strings.TrimSpace(flatten(x)); s != "" {
			out = []string{s}
		}
	}
	*l = out
	return nil
}

// decodeLoose decodes arbitrary JSON keeping numbers as their literal text
func decodeLoose(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// flatten renders any decoded JSON value as text
func flatten(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		parts := make([]string, 0, len(x))
		for _, k := range sortedKeys(x) {
			parts = append(parts, k+": "+flatten(x[k]))
		}
		return strings.Join(parts, "\n")
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lookup returns the first present key (case-insensitive) from an object
func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	for _, k := range keys {
		for mk, v := range m {
			if strings.EqualFold(mk, k) {
				return v
			}
		}
	}
	return nil
}

// Activity describes an in-person or online learning activity
type Activity struct {
	Instructions string `json:"instructions"`
	Materials    string `json:"materials"`
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Activity) UnmarshalJSON(data []byte) error {
	v, err := decodeLoose(data)
	if err != nil {
		return err
	}
	*a = Activity{}
	if m, ok := v.(map[string]any); ok {
		a.Instructions = flatten(lookup(m, "instructions", "steps", "description"))
		a.Materials = flatten(lookup(m, "materials", "tools", "resources"))
		return nil
	}
	a.Instructions = flatten(v)
	return nil
}

// Assessment describes how a competency is assessed
type Assessment struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Assessment) UnmarshalJSON(data []byte) error {
	v, err := decodeLoose(data)
	if err != nil {
		return err
	}
	*a = Assessment{}
	if m, ok := v.(map[string]any); ok {
		a.Type = flatten(lookup(m, "type", "kind"))
		a.Content = flatten(lookup(m, "content", "description", "items"))
		return nil
	}
	a.Content = flatten(v)
	return nil
}

// GraspsTask is the Goal/Role/Audience/Situation/Product/Standards frame
type GraspsTask struct {
	Goal      string `json:"goal"`
	Role      string `json:"role"`
	Audience  string `json:"audience"`
	Situation string `json:"situation"`
	Product   string `json:"product"`
	Standards string `json:"standards"`
}

// UnmarshalJSON implements json.Unmarshaler
func (g *GraspsTask) UnmarshalJSON(data []byte) error {
	v, err := decodeLoose(data)
	if err != nil {
		return err
	}
	*g = GraspsTask{}
	m, ok := v.(map[string]any)
	if !ok {
		g.Situation = flatten(v)
		return nil
	}
	g.Goal = flatten(lookup(m, "goal"))
	g.Role = flatten(lookup(m, "role"))
	g.Audience = flatten(lookup(m, "audience"))
	g.Situation = flatten(lookup(m, "situation"))
	g.Product = flatten(lookup(m, "product", "performance"))
	g.Standards = flatten(lookup(m, "standards", "criteria"))
	return nil
}

// RubricCriterion is one row of the performance task rubric
type RubricCriterion struct {
	Criteria    string `json:"criteria"`
	Description string `json:"description"`
	Points      string `json:"points"`
}

// Rubric is an ordered list of criteria
type Rubric []RubricCriterion

// UnmarshalJSON implements json.Unmarshaler
func (r *Rubric) UnmarshalJSON(data []byte) error {
	v, err := decodeLoose(data)
	if err != nil {
		return err
	}
	var out Rubric
	switch x := v.(type) {
	case nil:
	case []any:
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				out = append(out, RubricCriterion{
					Criteria:    flatten(lookup(m, "criteria", "criterion", "name")),
					Description: flatten(lookup(m, "description", "descriptor")),
					Points:      flatten(lookup(m, "points", "score", "weight")),
				})
				continue
			}
			out = append(out, RubricCriterion{Description: flatten(item)})
		}
	case map[string]any:
		for _, k := range sortedKeys(x) {
			out = append(out, RubricCriterion{Criteria: k, Description: flatten(x[k])})
		}
	default:
		out = Rubric{{Description: flatten(x)}}
	}
	*r = out
	return nil
}

// CoreValue is one integrated core value with its classroom description
type CoreValue struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CoreValues is an ordered list of core values
type CoreValues []CoreValue

// UnmarshalJSON implements json.Unmarshaler
func (c *CoreValues) UnmarshalJSON(data []byte) error {
	v, err := decodeLoose(data)
	if err != nil {
		return err
	}
	var out CoreValues
	switch x := v.(type) {
	case nil:
	case []any:
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				out = append(out, CoreValue{
					Name:        flatten(lookup(m, "name", "value")),
					Description: flatten(lookup(m, "description", "integration")),
				})
				continue
			}
			out = append(out, CoreValue{Name: flatten(item)})
		}
	case map[string]any:
		for _, k := range sortedKeys(x) {
			out = append(out, CoreValue{Name: k, Description: flatten(x[k])})
		}
	default:
		out = CoreValues{{Description: flatten(x)}}
	}
	*c = out
	return nil
}

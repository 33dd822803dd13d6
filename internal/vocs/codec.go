package vocs

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Constraints serialize as a two-element list: [KIND, value].

// MarshalYAML implements yaml.Marshaler.
func (c Constraint) MarshalYAML() (interface{}, error) {
	return []any{string(c.Kind), c.Value}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Constraint) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: constraint must be a [KIND, value] list", node.Line)
	}
	var kind string
	if err := node.Content[0].Decode(&kind); err != nil {
		return fmt.Errorf("line %d: constraint kind: %w", node.Line, err)
	}
	var value float64
	if err := node.Content[1].Decode(&value); err != nil {
		return fmt.Errorf("line %d: constraint value: %w", node.Line, err)
	}
	c.Kind = ConstraintKind(kind)
	c.Value = value
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Constraint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{string(c.Kind), c.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Constraint) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("constraint must be a [KIND, value] list: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("constraint must be a [KIND, value] list, got %d elements", len(raw))
	}
	var kind string
	if err := json.Unmarshal(raw[0], &kind); err != nil {
		return fmt.Errorf("constraint kind: %w", err)
	}
	var value float64
	if err := json.Unmarshal(raw[1], &value); err != nil {
		return fmt.Errorf("constraint value: %w", err)
	}
	c.Kind = ConstraintKind(kind)
	c.Value = value
	return nil
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/xopt/internal/xopt"
)

// Load reads and decodes the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Decode parses a YAML or JSON document.
//
// The document is checked three ways: an xopt section that is present must be
// a mapping (an options error otherwise), the whole document must match the
// embedded schema, and the typed decode rejects unknown fields.
func Decode(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse document: top level must be a mapping")
	}

	if opts := mappingValue(root.Content[0], "xopt"); opts != nil && opts.Kind != yaml.MappingNode && !isNull(opts) {
		return nil, xopt.NewOptionsError("xopt", fmt.Sprintf("line %d: must be a mapping", opts.Line))
	}

	var raw any
	if err := root.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if err := ValidateRaw(raw); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// Options converts the section to run options.
func (o OptionsDoc) Options() xopt.Options {
	opts := xopt.Options{
		Asynch:         o.Asynch,
		Strict:         o.Strict,
		MaxEvaluations: o.MaxEvaluations,
	}
	if o.Timeout != nil {
		opts.Timeout = time.Duration(*o.Timeout * float64(time.Second))
	}
	return opts
}

func optionsDoc(o xopt.Options) OptionsDoc {
	doc := OptionsDoc{
		Asynch:         o.Asynch,
		Strict:         o.Strict,
		MaxEvaluations: o.MaxEvaluations,
	}
	if o.Timeout > 0 {
		secs := o.Timeout.Seconds()
		doc.Timeout = &secs
	}
	return doc
}

// Package config reads and writes run documents: the YAML (or JSON) file
// that names a generator, an evaluator function, the VOCS and the run
// options, and turns one into a ready-to-run orchestrator.
//
// A document looks like:
//
//	xopt:
//	  asynch: false
//	  strict: false
//	  timeout: null
//	generator:
//	  name: random
//	  seed: 7
//	evaluator:
//	  function: sphere
//	  max_workers: 2
//	vocs:
//	  variables:
//	    x1: [0, 1]
//	  objectives:
//	    y: MINIMIZE
//
// Generator params sit next to the generator name and are decoded by the
// generator's own factory.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/xopt/internal/vocs"
)

// Document is a run document.
type Document struct {
	Xopt      OptionsDoc   `yaml:"xopt"`
	Generator GeneratorDoc `yaml:"generator"`
	Evaluator EvaluatorDoc `yaml:"evaluator"`
	VOCS      vocs.VOCS    `yaml:"vocs"`
}

// OptionsDoc is the serialized form of xopt.Options.
type OptionsDoc struct {
	Asynch bool `yaml:"asynch"`
	Strict bool `yaml:"strict"`
	// Timeout is in seconds. Null waits forever.
	Timeout        *float64 `yaml:"timeout"`
	MaxEvaluations int      `yaml:"max_evaluations,omitempty"`
	// DumpFile, when set, receives the document after every step.
	DumpFile string `yaml:"dump_file,omitempty"`
}

// EvaluatorDoc names a registered evaluator function.
type EvaluatorDoc struct {
	Function   string `yaml:"function"`
	MaxWorkers int    `yaml:"max_workers,omitempty"`
}

// GeneratorDoc is a generator type name plus its params. In the document the
// params are sibling keys of name.
type GeneratorDoc struct {
	Name string
	// Params is a mapping node of every key except name, or nil.
	Params *yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (g *GeneratorDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: generator must be a mapping", node.Line)
	}
	params := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Value == "name" {
			if err := value.Decode(&g.Name); err != nil {
				return fmt.Errorf("line %d: generator name: %w", value.Line, err)
			}
			continue
		}
		params.Content = append(params.Content, key, value)
	}
	g.Params = nil
	if len(params.Content) > 0 {
		g.Params = params
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler. name comes first.
func (g GeneratorDoc) MarshalYAML() (interface{}, error) {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	out.Content = append(out.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "name"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: g.Name},
	)
	if g.Params != nil && g.Params.Kind == yaml.MappingNode {
		out.Content = append(out.Content, g.Params.Content...)
	}
	return out, nil
}

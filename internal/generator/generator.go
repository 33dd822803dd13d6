// Package generator defines the proposal side of the optimization loop.
//
// A Generator proposes candidate input records and learns from completed
// rows. Variants live in subpackages and register themselves by type name,
// so a config document can name the generator it wants:
//
//	import _ "github.com/roach88/xopt/internal/generator/random"
//
//	gen, err := generator.New("random", v, params, blobs)
package generator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/xopt/internal/blob"
	"github.com/roach88/xopt/internal/table"
	"github.com/roach88/xopt/internal/vocs"
)

// Generator proposes candidates and consumes completed rows.
type Generator interface {
	// Generate returns up to n candidate input records. Returning fewer is
	// allowed; returning none means nothing to propose right now.
	Generate(n int) ([]table.Record, error)

	// AddData hands the generator newly completed rows, failed rows
	// included. Rows already seen are ignored.
	AddData(rows []table.Row) error
}

// Finisher is implemented by generators that can declare the run complete.
type Finisher interface {
	Done() bool
}

// Serializable is implemented by generators that can be written back into a
// config document. Config returns the params to store under the generator's
// type name; components that do not fit inline are saved through blobs.
type Serializable interface {
	Type() string
	Config(blobs blob.Store) (any, error)
}

// Params is the undecoded parameter block of a generator section.
// *yaml.Node satisfies it.
type Params interface {
	Decode(v any) error
}

// Factory builds a generator for v from its params.
type Factory func(v *vocs.VOCS, params Params, blobs blob.Store) (Generator, error)

var (
	// ErrGeneratorExists is returned when a type name is registered twice.
	ErrGeneratorExists = errors.New("generator already registered")
	// ErrGeneratorNotFound is returned for an unknown type name.
	ErrGeneratorNotFound = errors.New("generator not found")
)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// Register adds a factory under name.
func Register(name string, f Factory) error {
	if name == "" {
		return errors.New("generator name is required")
	}
	if f == nil {
		return fmt.Errorf("generator %q: nil factory", name)
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrGeneratorExists, name)
	}
	registry.factories[name] = f
	return nil
}

// MustRegister is Register for init functions.
func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

// New builds the generator registered under name.
func New(name string, v *vocs.VOCS, params Params, blobs blob.Store) (Generator, error) {
	registry.mu.RLock()
	f, ok := registry.factories[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGeneratorNotFound, name)
	}
	if v == nil {
		return nil, fmt.Errorf("generator %s: vocs is required", name)
	}
	gen, err := f(v, params, blobs)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", name, err)
	}
	return gen, nil
}

// Names lists registered generator types in sorted order.
func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeParams decodes p into v, rejecting unknown fields. A nil or empty p
// leaves v untouched.
func DecodeParams(p Params, v any) error {
	if p == nil {
		return nil
	}
	node, ok := p.(*yaml.Node)
	if !ok {
		return p.Decode(v)
	}
	if node == nil || node.Kind == 0 {
		return nil
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

// MapParams adapts a plain map to Params. Decoding round-trips through YAML
// with unknown fields rejected.
type MapParams map[string]any

// Decode implements Params.
func (m MapParams) Decode(v any) error {
	if len(m) == 0 {
		return nil
	}
	var node yaml.Node
	if err := node.Encode(map[string]any(m)); err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	return DecodeParams(&node, v)
}

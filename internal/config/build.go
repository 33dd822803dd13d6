package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/xopt/internal/blob"
	"github.com/roach88/xopt/internal/evaluator"
	"github.com/roach88/xopt/internal/generator"
	"github.com/roach88/xopt/internal/xopt"

	// Generator types available to documents.
	_ "github.com/roach88/xopt/internal/generator/bayesian"
	_ "github.com/roach88/xopt/internal/generator/random"
)

// Build constructs an orchestrator from doc. Blob refs in generator params
// resolve against baseDir. opts are applied after the document's own
// settings.
func Build(doc *Document, baseDir string, opts ...xopt.Option) (*xopt.Xopt, error) {
	v := doc.VOCS.Clone()
	v.NormalizeNames()
	if err := v.Validate(); err != nil {
		return nil, xopt.NewConfigurationError("vocs", err.Error())
	}

	var params generator.Params
	if doc.Generator.Params != nil {
		params = doc.Generator.Params
	}
	gen, err := generator.New(doc.Generator.Name, v, params, blob.NewStore(baseDir))
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}

	fn, err := evaluator.LookupFunc(doc.Evaluator.Function)
	if err != nil {
		return nil, fmt.Errorf("build evaluator: %w", err)
	}
	poolOpts := []evaluator.PoolOption{evaluator.WithName(doc.Evaluator.Function)}
	if doc.Evaluator.MaxWorkers > 0 {
		poolOpts = append(poolOpts, evaluator.WithMaxWorkers(doc.Evaluator.MaxWorkers))
	}
	eval, err := evaluator.NewPool(fn, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("build evaluator: %w", err)
	}

	return xopt.New(gen, eval, v, doc.Xopt.Options(), opts...)
}

// FromXopt describes a live orchestrator as a document. Generator components
// that do not fit inline are written to blobs.
func FromXopt(x *xopt.Xopt, blobs blob.Store) (*Document, error) {
	s, ok := x.Generator().(generator.Serializable)
	if !ok {
		return nil, fmt.Errorf("generator %T cannot be serialized", x.Generator())
	}
	cfg, err := s.Config(blobs)
	if err != nil {
		return nil, fmt.Errorf("serialize generator: %w", err)
	}
	var params yaml.Node
	if err := params.Encode(cfg); err != nil {
		return nil, fmt.Errorf("serialize generator: %w", err)
	}

	named, ok := x.Evaluator().(interface{ Name() string })
	if !ok || named.Name() == "" {
		return nil, fmt.Errorf("evaluator %T has no function name", x.Evaluator())
	}

	doc := &Document{
		Xopt:      optionsDoc(x.Options()),
		Generator: GeneratorDoc{Name: s.Type()},
		Evaluator: EvaluatorDoc{
			Function:   named.Name(),
			MaxWorkers: x.Evaluator().MaxWorkers(),
		},
		VOCS: *x.VOCS().Clone(),
	}
	if params.Kind == yaml.MappingNode && len(params.Content) > 0 {
		doc.Generator.Params = &params
	}
	return doc, nil
}

package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError reports a document that does not match the schema.
type SchemaError struct {
	// Details is the CUE error text, one violation per line.
	Details string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("document does not match schema: %s", e.Details)
}

// A cue.Context is not safe for concurrent use; mu guards every use of ctx.
var compiled struct {
	once sync.Once
	mu   sync.Mutex
	ctx  *cue.Context
	doc  cue.Value
	err  error
}

func documentSchema() (*cue.Context, cue.Value, error) {
	compiled.once.Do(func() {
		ctx := cuecontext.New()
		schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := schema.Err(); err != nil {
			compiled.err = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiled.ctx = ctx
		compiled.doc = schema.LookupPath(cue.ParsePath("#Document"))
	})
	return compiled.ctx, compiled.doc, compiled.err
}

// ValidateRaw checks a generically decoded document (maps, slices and
// scalars, as yaml.v3 produces them) against the embedded schema.
func ValidateRaw(raw any) error {
	ctx, def, err := documentSchema()
	if err != nil {
		return err
	}
	compiled.mu.Lock()
	defer compiled.mu.Unlock()

	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return &SchemaError{Details: cueerrors.Details(err, nil)}
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}

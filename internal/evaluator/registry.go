package evaluator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrFuncExists is returned when registering a name twice.
	ErrFuncExists = errors.New("evaluator function already registered")
	// ErrFuncNotFound is returned when looking up an unknown name.
	ErrFuncNotFound = errors.New("evaluator function not found")
)

var funcs = struct {
	mu sync.RWMutex
	m  map[string]Func
}{m: make(map[string]Func)}

// RegisterFunc makes fn available to configuration documents under name.
func RegisterFunc(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("function name is required")
	}
	if fn == nil {
		return fmt.Errorf("function %q is nil", name)
	}
	funcs.mu.Lock()
	defer funcs.mu.Unlock()
	if _, ok := funcs.m[name]; ok {
		return fmt.Errorf("%w: %s", ErrFuncExists, name)
	}
	funcs.m[name] = fn
	return nil
}

// LookupFunc returns the function registered under name.
func LookupFunc(name string) (Func, error) {
	funcs.mu.RLock()
	defer funcs.mu.RUnlock()
	fn, ok := funcs.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFuncNotFound, name)
	}
	return fn, nil
}

// FuncNames lists registered function names in sorted order.
func FuncNames() []string {
	funcs.mu.RLock()
	defer funcs.mu.RUnlock()
	names := make([]string, 0, len(funcs.m))
	for name := range funcs.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustRegister(name string, fn Func) {
	if err := RegisterFunc(name, fn); err != nil {
		panic(err)
	}
}

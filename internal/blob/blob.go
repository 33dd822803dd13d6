// Package blob stores configuration components that do not fit inline in a
// config document (fitted model pieces, kernel hyperparameters) as auxiliary
// files, and hands back a Ref that the document carries instead.
//
// Addressing: a relative Ref resolves against the Store's Dir, which defaults
// to the process working directory. The directory is therefore part of the
// persisted state; moving a document without its blobs breaks the refs.
package blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrEmptyRef is returned when loading a Ref with no path.
var ErrEmptyRef = errors.New("empty blob reference")

// Ref points at an auxiliary file. Serializes as a plain path string.
type Ref struct {
	Path string
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool { return r.Path == "" }

// String returns the path.
func (r Ref) String() string { return r.Path }

// MarshalYAML implements yaml.Marshaler.
func (r Ref) MarshalYAML() (interface{}, error) { return r.Path, nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	var path string
	if err := node.Decode(&path); err != nil {
		return fmt.Errorf("blob ref: %w", err)
	}
	r.Path = path
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Ref) MarshalJSON() ([]byte, error) { return json.Marshal(r.Path) }

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ref) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Path)
}

// Store saves and loads blobs under Dir.
type Store struct {
	// Dir is the base directory. Empty means the working directory.
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) Store { return Store{Dir: dir} }

// Resolve returns the filesystem path for ref.
func (s Store) Resolve(ref Ref) string {
	if filepath.IsAbs(ref.Path) || s.Dir == "" {
		return ref.Path
	}
	return filepath.Join(s.Dir, ref.Path)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Save writes v as JSON to <Dir>/<name>.json and returns a ref relative to
// Dir. The write goes through a temp file and rename so readers never see a
// partial blob.
func (s Store) Save(name string, v any) (Ref, error) {
	if name == "" {
		return Ref{}, errors.New("blob name is required")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Ref{}, fmt.Errorf("encode blob %s: %w", name, err)
	}

	ref := Ref{Path: unsafeName.ReplaceAllString(name, "_") + ".json"}
	path := s.Resolve(ref)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Ref{}, fmt.Errorf("create blob dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return Ref{}, fmt.Errorf("create blob %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Ref{}, fmt.Errorf("write blob %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Ref{}, fmt.Errorf("close blob %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Ref{}, fmt.Errorf("commit blob %s: %w", name, err)
	}
	return ref, nil
}

// Load decodes the blob at ref into v.
func (s Store) Load(ref Ref, v any) error {
	if ref.IsZero() {
		return ErrEmptyRef
	}
	data, err := os.ReadFile(s.Resolve(ref))
	if err != nil {
		return fmt.Errorf("read blob %s: %w", ref.Path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode blob %s: %w", ref.Path, err)
	}
	return nil
}

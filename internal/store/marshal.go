package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/xopt/internal/table"
)

// marshalValues converts a row to JSON TEXT for storage. The error flag and
// message have their own columns and are left out. NaN and infinite floats
// have no JSON form and are stored as null.
func marshalValues(rec table.Record) (string, error) {
	m := make(map[string]any, len(rec))
	for name, v := range rec {
		if name == table.ErrorFlagColumn || name == table.ErrorMessageColumn {
			continue
		}
		m[name] = finiteOrNil(v)
	}

	// json.Encoder sorts map keys, so equal rows store identical text.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func finiteOrNil(v any) any {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil
		}
	}
	return v
}

// unmarshalValues parses JSON TEXT back into a row. Numbers come back as
// float64 and nulls as NaN.
func unmarshalValues(data string) (table.Record, error) {
	rec := table.Record{}
	if data == "" || data == "{}" {
		return rec, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	for name, v := range m {
		if v == nil {
			rec[name] = math.NaN()
			continue
		}
		rec[name] = v
	}
	return rec, nil
}

// errorFields extracts the error flag and message of a merged row.
func errorFields(rec table.Record) (failed bool, msg string) {
	failed, _ = rec[table.ErrorFlagColumn].(bool)
	msg, _ = rec[table.ErrorMessageColumn].(string)
	return failed, msg
}

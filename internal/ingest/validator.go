package ingest

// validator.go checks a parsed row against the inventory schema.
//
// Checks run in three fixed passes and every failing reason is kept:
//  1. required fields must be non-empty
//  2. numeric fields must hold a finite decimal
//  3. enumerated fields must hold one of the configured values
//
// The validator never touches the parser, the sink or any shared state, so it
// can be tested on a bare field map.

import (
	"fmt"
	"strings"
)

// FieldType is the expected kind of a column value.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldEnum
)

// FieldSpec defines the rules for one column.
type FieldSpec struct {
	Key      string // column header, e.g. "carat"
	Label    string // name used in messages, e.g. "Carat weight"
	Type     FieldType
	Required bool
	Allowed  []string // legal values for FieldEnum, in display order
}

// Schema is the ordered column list for an upload.
type Schema []FieldSpec

// Columns returns the header names in schema order.
func (s Schema) Columns() []string {
	cols := make([]string, len(s))
	for i, spec := range s {
		cols[i] = spec.Key
	}
	return cols
}

// Field returns the spec for a column key.
func (s Schema) Field(key string) (FieldSpec, bool) {
	for _, spec := range s {
		if strings.EqualFold(spec.Key, key) {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// Validator applies a Schema to rows.
type Validator struct {
	schema Schema
}

// NewValidator creates a validator for the given schema.
func NewValidator(schema Schema) *Validator {
	return &Validator{schema: schema}
}

// Schema returns the schema the validator was built with.
func (v *Validator) Schema() Schema {
	return v.schema
}

// Validate checks one row's fields.
func (v *Validator) Validate(fields map[string]string) Verdict {
	return v.ValidateRow(RawRow{Fields: fields})
}

// ValidateRow checks one row and returns every failing reason.
func (v *Validator) ValidateRow(row RawRow) Verdict {
	var reasons []string

	for _, spec := range v.schema {
		if spec.Required && row.Get(spec.Key) == "" {
			reasons = append(reasons, fmt.Sprintf("%s is required", spec.label()))
		}
	}

	for _, spec := range v.schema {
		if spec.Type != FieldNumeric {
			continue
		}
		raw := row.Get(spec.Key)
		if raw == "" {
			continue
		}
		if _, ok := NormalizeDecimal(raw); !ok {
			reasons = append(reasons, fmt.Sprintf("Valid %s is required", spec.label()))
		}
	}

	for _, spec := range v.schema {
		if spec.Type != FieldEnum || len(spec.Allowed) == 0 {
			continue
		}
		raw := row.Get(spec.Key)
		if raw == "" {
			continue
		}
		if _, ok := spec.Canonical(raw); !ok {
			reasons = append(reasons, fmt.Sprintf("%s must be one of: %s",
				spec.label(), strings.Join(spec.Allowed, ", ")))
		}
	}

	return Verdict{Valid: len(reasons) == 0, Reasons: reasons}
}

// Canonical returns the allowed value matching raw case-insensitively,
// spelled the way the schema spells it.
func (f FieldSpec) Canonical(raw string) (string, bool) {
	for _, v := range f.Allowed {
		if strings.EqualFold(v, raw) {
			return v, true
		}
	}
	return "", false
}

func (f FieldSpec) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

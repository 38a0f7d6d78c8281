package ingest

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testSchema mirrors the gem inventory columns.
func testSchema() Schema {
	return Schema{
		{Key: "gemType", Label: "Gem type", Type: FieldEnum, Required: true,
			Allowed: []string{"Diamond", "Ruby", "Sapphire", "Emerald"}},
		{Key: "carat", Label: "Carat weight", Type: FieldNumeric, Required: true},
		{Key: "cut", Label: "Cut", Type: FieldText, Required: true},
		{Key: "color", Label: "Color", Type: FieldText, Required: true},
		{Key: "description", Label: "Description", Type: FieldText, Required: true},
		{Key: "measurements", Label: "Measurements", Type: FieldText, Required: true},
		{Key: "price", Label: "Price", Type: FieldNumeric, Required: true},
		{Key: "costPrice", Label: "Cost price", Type: FieldNumeric},
		{Key: "certificateNumber", Label: "Certificate number", Type: FieldText, Required: true},
		{Key: "status", Label: "Status", Type: FieldEnum,
			Allowed: []string{"In Stock", "Reserved", "On Memo", "Sold"}},
	}
}

func validFields() map[string]string {
	return map[string]string{
		"gemType":           "Diamond",
		"carat":             "1.25",
		"cut":               "Round Brilliant",
		"color":             "D",
		"description":       "Nice stone",
		"measurements":      "7x7x4mm",
		"price":             "15000",
		"costPrice":         "10000",
		"certificateNumber": "GIA-123",
		"status":            "In Stock",
	}
}

func withField(key, value string) map[string]string {
	f := validFields()
	f[key] = value
	return f
}

func TestValidate(t *testing.T) {
	v := NewValidator(testSchema())

	tests := []struct {
		name   string
		fields map[string]string
		want   []string
	}{
		{
			name:   "valid row",
			fields: validFields(),
			want:   nil,
		},
		{
			name:   "non-numeric carat",
			fields: withField("carat", "abc"),
			want:   []string{"Valid Carat weight is required"},
		},
		{
			name:   "decimal comma carat",
			fields: withField("carat", "1,25"),
			want:   []string{"Valid Carat weight is required"},
		},
		{
			name:   "misplaced commas",
			fields: withField("carat", "1,2,3"),
			want:   []string{"Valid Carat weight is required"},
		},
		{
			name:   "carat overflows float64",
			fields: withField("carat", "1e400"),
			want:   []string{"Valid Carat weight is required"},
		},
		{
			name:   "empty carat only reports required",
			fields: withField("carat", ""),
			want:   []string{"Carat weight is required"},
		},
		{
			name:   "missing certificate",
			fields: withField("certificateNumber", ""),
			want:   []string{"Certificate number is required"},
		},
		{
			name:   "unknown status lists allowed set",
			fields: withField("status", "Lost"),
			want:   []string{"Status must be one of: In Stock, Reserved, On Memo, Sold"},
		},
		{
			name:   "status is optional",
			fields: withField("status", ""),
			want:   nil,
		},
		{
			name:   "enum match ignores case",
			fields: withField("status", "in stock"),
			want:   nil,
		},
		{
			name:   "unknown gem type",
			fields: withField("gemType", "Quartz"),
			want:   []string{"Gem type must be one of: Diamond, Ruby, Sapphire, Emerald"},
		},
		{
			name:   "optional numeric checked when present",
			fields: withField("costPrice", "ten"),
			want:   []string{"Valid Cost price is required"},
		},
		{
			name:   "currency formatted price accepted",
			fields: withField("price", "$15,000.00"),
			want:   nil,
		},
		{
			name:   "infinite price rejected",
			fields: withField("price", "Inf"),
			want:   []string{"Valid Price is required"},
		},
		{
			name: "reasons accumulate in pass order",
			fields: map[string]string{
				"gemType": "Quartz",
				"carat":   "heavy",
				"price":   "NaN",
				"status":  "Gone",
			},
			want: []string{
				"Cut is required",
				"Color is required",
				"Description is required",
				"Measurements is required",
				"Certificate number is required",
				"Valid Carat weight is required",
				"Valid Price is required",
				"Gem type must be one of: Diamond, Ruby, Sapphire, Emerald",
				"Status must be one of: In Stock, Reserved, On Memo, Sold",
			},
		},
		{
			name:   "empty row",
			fields: map[string]string{},
			want: []string{
				"Gem type is required",
				"Carat weight is required",
				"Cut is required",
				"Color is required",
				"Description is required",
				"Measurements is required",
				"Price is required",
				"Certificate number is required",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.fields)
			if diff := cmp.Diff(tt.want, got.Reasons); diff != "" {
				t.Errorf("reasons mismatch (-want +got):\n%s", diff)
			}
			if got.Valid != (len(tt.want) == 0) {
				t.Errorf("Valid = %v, want %v", got.Valid, len(tt.want) == 0)
			}
		})
	}
}

func TestValidate_MissingFieldNamedInReason(t *testing.T) {
	v := NewValidator(testSchema())
	for _, spec := range testSchema() {
		if !spec.Required {
			continue
		}
		verdict := v.Validate(withField(spec.Key, ""))
		if verdict.Valid {
			t.Errorf("row without %s should be invalid", spec.Key)
			continue
		}
		if !strings.Contains(strings.Join(verdict.Reasons, "; "), spec.Label) {
			t.Errorf("reasons %v do not name %q", verdict.Reasons, spec.Label)
		}
	}
}

func TestValidate_EnumValuesFromConfiguration(t *testing.T) {
	schema := testSchema()
	for i := range schema {
		if schema[i].Key == "status" {
			schema[i].Allowed = []string{"Available", "Consigned"}
		}
	}
	v := NewValidator(schema)

	if got := v.Validate(withField("status", "Consigned")); !got.Valid {
		t.Errorf("Consigned should be allowed, got %v", got.Reasons)
	}
	got := v.Validate(withField("status", "In Stock"))
	want := []string{"Status must be one of: Available, Consigned"}
	if diff := cmp.Diff(want, got.Reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeDecimal(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"1.25", "1.25", true},
		{" 15000 ", "15000", true},
		{"$1,250.50", "1250.50", true},
		{"€99", "99", true},
		{"(12.5)", "-12.5", true},
		{".5", ".5", true},
		{"1e3", "1e3", true},
		{"", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"NaN", "", false},
		{"Inf", "", false},
		{"-Infinity", "", false},
		{"12ct", "", false},
		{"1,234,567.5", "1234567.5", true},
		{"-$1,000", "-1000", true},
		{"1,25", "", false},
		{"1,2,3", "", false},
		{"1234,567", "", false},
		{",5", "", false},
		{"1e400", "", false},
		{"-1e400", "", false},
		{"1e-400", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDecimal(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeDecimal(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFieldSpecCanonical(t *testing.T) {
	spec := FieldSpec{Key: "status", Type: FieldEnum, Allowed: []string{"In Stock", "Sold"}}

	if got, ok := spec.Canonical("SOLD"); !ok || got != "Sold" {
		t.Errorf("Canonical(SOLD) = (%q, %v), want (Sold, true)", got, ok)
	}
	if _, ok := spec.Canonical("Stolen"); ok {
		t.Error("Canonical(Stolen) should not match")
	}
}

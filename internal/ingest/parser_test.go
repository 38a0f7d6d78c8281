package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleHeader = "gemType,carat,cut,color,description,measurements,price,costPrice,certificateNumber,status"

func TestParse_SampleRow(t *testing.T) {
	input := sampleHeader + "\nDiamond,1.25,Round Brilliant,D,Nice stone,7x7x4mm,15000,10000,GIA-123,In Stock"

	table, err := ParseString(input)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	want := []RawRow{{
		LineNumber: 2,
		Fields: map[string]string{
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
		},
	}}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(strings.Split(sampleHeader, ","), table.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_LineNumbers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{
			name:  "consecutive rows",
			input: "a,b\n1,2\n3,4\n5,6",
			want:  []int{2, 3, 4},
		},
		{
			name:  "blank lines are skipped but counted",
			input: "a,b\n1,2\n\n3,4\n",
			want:  []int{2, 4},
		},
		{
			name:  "whitespace-only and comma-only lines skipped",
			input: "a,b\n1,2\n   \n , \n3,4",
			want:  []int{2, 5},
		},
		{
			name:  "windows line endings",
			input: "a,b\r\n1,2\r\n3,4\r\n",
			want:  []int{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseString(tt.input)
			if err != nil {
				t.Fatalf("ParseString(%q) error = %v", tt.input, err)
			}
			got := make([]int, len(table.Rows))
			for i, row := range table.Rows {
				got[i] = row.LineNumber
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("line numbers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Values(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "double quotes stripped",
			input: "a,b\n\"x\",\"y\"",
			want:  map[string]string{"a": "x", "b": "y"},
		},
		{
			name:  "single quotes stripped",
			input: "a,b\n'x','y'",
			want:  map[string]string{"a": "x", "b": "y"},
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "a , b \n  x  ,\ty\t",
			want:  map[string]string{"a": "x", "b": "y"},
		},
		{
			name:  "short row padded with empty strings",
			input: "a,b,c\nx",
			want:  map[string]string{"a": "x", "b": "", "c": ""},
		},
		{
			name:  "extra values ignored",
			input: "a,b\nx,y,z",
			want:  map[string]string{"a": "x", "b": "y"},
		},
		{
			name:  "quoted value keeps its comma",
			input: "a,b\n\"Nice, clean stone\",y",
			want:  map[string]string{"a": "Nice, clean stone", "b": "y"},
		},
		{
			name:  "byte order mark removed from header",
			input: "\xEF\xBB\xBFa,b\nx,y",
			want:  map[string]string{"a": "x", "b": "y"},
		},
		{
			name:  "invalid utf-8 replaced",
			input: "a,b\ncaf\xe9,y",
			want:  map[string]string{"a": "caf\uFFFD", "b": "y"},
		},
		{
			name:  "blank header column ignored",
			input: "a,,b\nx,skip,y",
			want:  map[string]string{"a": "x", "b": "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseString(tt.input)
			if err != nil {
				t.Fatalf("ParseString(%q) error = %v", tt.input, err)
			}
			if len(table.Rows) != 1 {
				t.Fatalf("got %d rows, want 1", len(table.Rows))
			}
			if diff := cmp.Diff(tt.want, table.Rows[0].Fields); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty file", input: "", want: "empty file"},
		{name: "whitespace only", input: " \n\n ", want: "empty file"},
		{name: "header only", input: "a,b\n", want: "no data rows"},
		{name: "header without names", input: ",,\n1,2,3", want: "no column names"},
		{name: "duplicate column", input: "a,A\n1,2", want: "duplicate column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input)
			if err == nil {
				t.Fatalf("ParseString(%q) expected error", tt.input)
			}
			if !errors.Is(err, ErrStructural) {
				t.Errorf("error %v is not ErrStructural", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseFile_UnsupportedFormat(t *testing.T) {
	_, err := ParseFile("stones.pdf", strings.NewReader("%PDF-1.4"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ParseFile(.pdf) error = %v, want ErrUnsupportedFormat", err)
	}
	if !errors.Is(err, ErrStructural) {
		t.Errorf("unsupported format should be a structural error, got %v", err)
	}
}

func TestCleanValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  x  ", "x"},
		{`"x"`, "x"},
		{`'x'`, "x"},
		{`"x'`, `"x'`},
		{`""`, ""},
		{`"`, `"`},
		{`" padded "`, "padded"},
		{`O'Brien`, `O'Brien`},
	}
	for _, tt := range tests {
		if got := CleanValue(tt.in); got != tt.want {
			t.Errorf("CleanValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRawRowGet(t *testing.T) {
	row := RawRow{Fields: map[string]string{"GemType": "Ruby", "carat": "2"}}

	if got := row.Get("GemType"); got != "Ruby" {
		t.Errorf("Get(GemType) = %q, want Ruby", got)
	}
	if got := row.Get("gemtype"); got != "Ruby" {
		t.Errorf("Get(gemtype) = %q, want case-insensitive match Ruby", got)
	}
	if got := row.Get("price"); got != "" {
		t.Errorf("Get(price) = %q, want empty", got)
	}
}

// Package inventory defines the gem record and the upload schema for it.
//
// The ingest package knows nothing about gems; this package supplies the
// column list, the enumerated value sets and the conversion from a validated
// row to a Gem ready for storage.
package inventory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/ingest"
)

// Column keys as they appear in the upload header.
const (
	ColGemType           = "gemType"
	ColCarat             = "carat"
	ColCut               = "cut"
	ColColor             = "color"
	ColClarity           = "clarity"
	ColShape             = "shape"
	ColDescription       = "description"
	ColMeasurements      = "measurements"
	ColOrigin            = "origin"
	ColTreatment         = "treatment"
	ColPrice             = "price"
	ColCostPrice         = "costPrice"
	ColCertificateNumber = "certificateNumber"
	ColCertificateLab    = "certificateLab"
	ColStatus            = "status"
	ColNotes             = "notes"
)

var (
	DefaultStatuses = []string{"In Stock", "Reserved", "On Memo", "Sold"}
	DefaultGemTypes = []string{"Diamond", "Ruby", "Sapphire", "Emerald", "Tanzanite", "Spinel", "Other"}
)

// DefaultStatus is assigned when a row leaves the status column empty.
const DefaultStatus = "In Stock"

// Options holds the configurable parts of the schema.
type Options struct {
	GemTypes      []string `yaml:"gem_types"`
	Statuses      []string `yaml:"statuses"`
	DefaultStatus string   `yaml:"default_status"`
}

// DefaultOptions returns the built-in value sets.
func DefaultOptions() Options {
	return Options{
		GemTypes:      append([]string(nil), DefaultGemTypes...),
		Statuses:      append([]string(nil), DefaultStatuses...),
		DefaultStatus: DefaultStatus,
	}
}

// LoadOptions reads value sets from a YAML file. Keys left out of the file
// keep their defaults. An empty path returns the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read schema file: %w", err)
	}

	var file Options
	if err := yaml.Unmarshal(data, &file); err != nil {
		return opts, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return opts.Merge(file)
}

// Resolve builds the options from configuration: the schema file first,
// then the value lists set directly in the environment.
func Resolve(cfg config.InventoryConfig) (Options, error) {
	opts, err := LoadOptions(cfg.SchemaFile)
	if err != nil {
		return opts, err
	}
	return opts.Merge(Options{
		GemTypes:      cfg.GemTypes,
		Statuses:      cfg.Statuses,
		DefaultStatus: cfg.DefaultStatus,
	})
}

// Merge overlays non-empty values from o onto opts and validates the result.
func (opts Options) Merge(o Options) (Options, error) {
	if len(o.GemTypes) > 0 {
		opts.GemTypes = cleanList(o.GemTypes)
	}
	if len(o.Statuses) > 0 {
		opts.Statuses = cleanList(o.Statuses)
	}
	if s := strings.TrimSpace(o.DefaultStatus); s != "" {
		opts.DefaultStatus = s
	}
	return opts, opts.Validate()
}

// Validate checks that the value sets are usable.
func (opts Options) Validate() error {
	if len(opts.GemTypes) == 0 {
		return fmt.Errorf("gem types: at least one value is required")
	}
	if len(opts.Statuses) == 0 {
		return fmt.Errorf("statuses: at least one value is required")
	}
	for _, s := range opts.Statuses {
		if strings.EqualFold(s, opts.DefaultStatus) {
			return nil
		}
	}
	return fmt.Errorf("default status %q is not one of the statuses %v", opts.DefaultStatus, opts.Statuses)
}

// Schema returns the gem upload schema in template column order.
func Schema(opts Options) ingest.Schema {
	return ingest.Schema{
		{Key: ColGemType, Label: "Gem type", Type: ingest.FieldEnum, Required: true, Allowed: opts.GemTypes},
		{Key: ColCarat, Label: "Carat weight", Type: ingest.FieldNumeric, Required: true},
		{Key: ColCut, Label: "Cut", Type: ingest.FieldText, Required: true},
		{Key: ColColor, Label: "Color", Type: ingest.FieldText, Required: true},
		{Key: ColDescription, Label: "Description", Type: ingest.FieldText, Required: true},
		{Key: ColMeasurements, Label: "Measurements", Type: ingest.FieldText, Required: true},
		{Key: ColPrice, Label: "Price", Type: ingest.FieldNumeric, Required: true},
		{Key: ColCostPrice, Label: "Cost price", Type: ingest.FieldNumeric},
		{Key: ColCertificateNumber, Label: "Certificate number", Type: ingest.FieldText, Required: true},
		{Key: ColStatus, Label: "Status", Type: ingest.FieldEnum, Allowed: opts.Statuses},
		{Key: ColClarity, Label: "Clarity", Type: ingest.FieldText},
		{Key: ColShape, Label: "Shape", Type: ingest.FieldText},
		{Key: ColOrigin, Label: "Origin", Type: ingest.FieldText},
		{Key: ColTreatment, Label: "Treatment", Type: ingest.FieldText},
		{Key: ColCertificateLab, Label: "Certificate lab", Type: ingest.FieldText},
		{Key: ColNotes, Label: "Notes", Type: ingest.FieldText},
	}
}

// DisplayColumns are the fields shown for each row in progress tables.
var DisplayColumns = []string{ColGemType, ColCarat, ColCertificateNumber, ColPrice}

// ExampleRow is the sample row written into upload templates.
func ExampleRow(opts Options) map[string]string {
	return map[string]string{
		ColGemType:           first(opts.GemTypes),
		ColCarat:             "1.25",
		ColCut:               "Round Brilliant",
		ColColor:             "D",
		ColDescription:       "Nice stone",
		ColMeasurements:      "7x7x4mm",
		ColPrice:             "15000",
		ColCostPrice:         "10000",
		ColCertificateNumber: "GIA-123",
		ColStatus:            opts.DefaultStatus,
		ColClarity:           "VS1",
		ColShape:             "Round",
		ColOrigin:            "Botswana",
		ColTreatment:         "None",
		ColCertificateLab:    "GIA",
		ColNotes:             "",
	}
}

// ParseList splits a comma-separated configuration value.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanList(strings.Split(s, ","))
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

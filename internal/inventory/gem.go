package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/gemstock/internal/ingest"
)

// Gem is one inventory record as stored by a GemStore.
type Gem struct {
	ID                uuid.UUID
	GemType           string
	Carat             pgtype.Numeric
	Cut               string
	Color             string
	Clarity           pgtype.Text
	Shape             pgtype.Text
	Description       string
	Measurements      string
	Origin            pgtype.Text
	Treatment         pgtype.Text
	Price             pgtype.Numeric
	CostPrice         pgtype.Numeric
	CertificateNumber string
	CertificateLab    pgtype.Text
	Status            string
	Notes             pgtype.Text
	SourceLine        int
	CreatedAt         time.Time
}

// GemStore persists gems.
type GemStore interface {
	InsertGem(ctx context.Context, g Gem) error
}

// Builder converts validated rows into gems.
type Builder struct {
	schema        ingest.Schema
	defaultStatus string
	newID         func() uuid.UUID
	now           func() time.Time
}

// NewBuilder creates a builder using the enum spellings in opts.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		schema:        Schema(opts),
		defaultStatus: opts.DefaultStatus,
		newID:         uuid.New,
		now:           time.Now,
	}
}

// Build maps a row onto a Gem. The row is expected to have passed the
// validator; Build still rejects values it cannot convert.
func (b *Builder) Build(row ingest.RawRow) (Gem, error) {
	g := Gem{
		ID:                b.newID(),
		Cut:               row.Get(ColCut),
		Color:             row.Get(ColColor),
		Description:       row.Get(ColDescription),
		Measurements:      row.Get(ColMeasurements),
		CertificateNumber: row.Get(ColCertificateNumber),
		Clarity:           toPgText(row.Get(ColClarity)),
		Shape:             toPgText(row.Get(ColShape)),
		Origin:            toPgText(row.Get(ColOrigin)),
		Treatment:         toPgText(row.Get(ColTreatment)),
		CertificateLab:    toPgText(row.Get(ColCertificateLab)),
		Notes:             toPgText(row.Get(ColNotes)),
		SourceLine:        row.LineNumber,
		CreatedAt:         b.now().UTC(),
	}

	var err error
	if g.GemType, err = b.enum(ColGemType, row.Get(ColGemType)); err != nil {
		return Gem{}, err
	}
	status := row.Get(ColStatus)
	if status == "" {
		status = b.defaultStatus
	}
	if g.Status, err = b.enum(ColStatus, status); err != nil {
		return Gem{}, err
	}

	if g.Carat, err = toPgNumeric("carat", row.Get(ColCarat)); err != nil {
		return Gem{}, err
	}
	if g.Price, err = toPgNumeric("price", row.Get(ColPrice)); err != nil {
		return Gem{}, err
	}
	if g.CostPrice, err = toPgNumeric("cost price", row.Get(ColCostPrice)); err != nil {
		return Gem{}, err
	}
	return g, nil
}

func (b *Builder) enum(key, raw string) (string, error) {
	spec, ok := b.schema.Field(key)
	if !ok {
		return raw, nil
	}
	v, ok := spec.Canonical(raw)
	if !ok {
		return "", fmt.Errorf("invalid enum %s %q", key, raw)
	}
	return v, nil
}

// GemSink is the ingest.Sink that stores each row as a Gem.
type GemSink struct {
	Builder *Builder
	Store   GemStore
}

// Write implements ingest.Sink.
func (s *GemSink) Write(ctx context.Context, row ingest.RawRow) error {
	g, err := s.Builder.Build(row)
	if err != nil {
		return &ingest.SinkError{Code: "VAL002", Message: err.Error(), Err: err}
	}
	return s.Store.InsertGem(ctx, g)
}

// toPgText returns an invalid Text for empty input so the column stores NULL.
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// toPgNumeric converts a cleaned decimal. Empty input is NULL.
func toPgNumeric(name, s string) (pgtype.Numeric, error) {
	if strings.TrimSpace(s) == "" {
		return pgtype.Numeric{}, nil
	}
	clean, ok := ingest.NormalizeDecimal(s)
	if !ok {
		return pgtype.Numeric{}, fmt.Errorf("invalid number for %s: %q", name, s)
	}
	if strings.ContainsAny(clean, "eE") {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return pgtype.Numeric{}, fmt.Errorf("invalid number for %s: %q: %w", name, s, err)
		}
		clean = strconv.FormatFloat(f, 'f', -1, 64)
	}
	var n pgtype.Numeric
	if err := n.Scan(clean); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("invalid number for %s: %q: %w", name, s, err)
	}
	return n, nil
}

// DecimalString formats a Numeric for display and for stores without a
// native decimal type. NULL becomes "".
func DecimalString(n pgtype.Numeric) string {
	if !n.Valid {
		return ""
	}
	v, err := n.Value()
	if err != nil || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Package numbering issues sequential document numbers per company and type.
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// Prefixes maps document types to their number prefix.
var Prefixes = map[string]string{
	"quotation":     "QUO",
	"proforma":      "PRO",
	"invoice":       "INV",
	"delivery_note": "DN",
	"credit_note":   "CN",
	"receipt":       "RCT",
}

// Generator draws numbers from the next_document_sequence function, which
// increments the counter row atomically on the server.
type Generator struct {
	db  store.Database
	now func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(db store.Database) *Generator {
	return &Generator{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used to pick the numbering year.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate returns the next number, e.g. INV-2024-0001.
func (g *Generator) Generate(ctx context.Context, companyID, documentType string) (string, error) {
	prefix, ok := Prefixes[documentType]
	if !ok {
		return "", fmt.Errorf("numbering: unknown document type %q", documentType)
	}
	if companyID == "" {
		return "", fmt.Errorf("numbering: company required")
	}
	year := g.now().Year()
	raw, err := g.db.RPC(ctx, "next_document_sequence", store.Record{
		"company_id":    companyID,
		"document_type": documentType,
		"year":          year,
	})
	if err != nil {
		return "", fmt.Errorf("numbering: next sequence: %w", err)
	}
	seq, err := toSequence(raw)
	if err != nil {
		return "", err
	}
	return Format(prefix, year, seq), nil
}

// Format renders a number with a four digit minimum sequence.
func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

func toSequence(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case decimal.Decimal:
		return n.IntPart(), nil
	default:
		return 0, fmt.Errorf("numbering: unexpected sequence value %T", v)
	}
}

package shared

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
)

// SequenceTable hands out counters from document_sequences. Bound to a
// transaction, the row lock taken by the upsert serializes concurrent callers
// for the same document type and period.
type SequenceTable struct {
	db db.DBTX
}

// NewSequenceTable binds the counter table to a connection or transaction.
func NewSequenceTable(conn db.DBTX) *SequenceTable {
	return &SequenceTable{db: conn}
}

// NextSequence increments and returns the counter for docType and period.
func (s *SequenceTable) NextSequence(ctx context.Context, docType, period string) (int64, error) {
	var seq int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, docType, period).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("document sequence %s/%s: %w", docType, period, err)
	}
	return seq, nil
}

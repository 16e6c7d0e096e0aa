// Package csvio is the engine's I/O boundary: it parses the delimited
// transaction stream and renders the final account report. The engine
// itself never touches bytes.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"paystream.org/internal/engine"
)

// ErrBadRecord marks a row that could not be parsed. Callers skip the
// row and keep reading; a bad row never aborts the stream.
var ErrBadRecord = errors.New("csvio: bad record")

// Reader streams transaction records from CSV input with the columns
// `type, client, tx, amount`. Whitespace around fields is tolerated
// and the amount column may be absent for reference kinds.
type Reader struct {
	cr   *csv.Reader
	line int
}

// NewReader wraps r. The first row is expected to be a header and is
// skipped on the first call to Next.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return &Reader{cr: cr}
}

// Next returns the next parsed record. It returns io.EOF at the end of
// the stream and an error wrapping ErrBadRecord for rows that do not
// parse.
func (r *Reader) Next() (engine.Record, error) {
	for {
		row, err := r.cr.Read()
		if err == io.EOF {
			return engine.Record{}, io.EOF
		}
		r.line++
		if err != nil {
			return engine.Record{}, fmt.Errorf("%w: line %d: %v", ErrBadRecord, r.line, err)
		}
		if r.line == 1 && isHeader(row) {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return engine.Record{}, fmt.Errorf("%w: line %d: %v", ErrBadRecord, r.line, err)
		}
		return rec, nil
	}
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "type")
}

func parseRow(row []string) (engine.Record, error) {
	if len(row) < 3 {
		return engine.Record{}, fmt.Errorf("expected at least 3 fields, got %d", len(row))
	}

	kind, err := parseKind(row[0])
	if err != nil {
		return engine.Record{}, err
	}
	client, err := strconv.ParseUint(strings.TrimSpace(row[1]), 10, 16)
	if err != nil {
		return engine.Record{}, fmt.Errorf("client: %v", err)
	}
	tx, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 32)
	if err != nil {
		return engine.Record{}, fmt.Errorf("tx: %v", err)
	}

	rec := engine.Record{
		Kind:   kind,
		Client: engine.ClientID(client),
		Tx:     engine.TxID(tx),
	}

	if len(row) > 3 {
		raw := strings.TrimSpace(row[3])
		if raw != "" {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return engine.Record{}, fmt.Errorf("amount: %v", err)
			}
			rec.Amount = amount
			rec.HasAmount = true
		}
	}
	return rec, nil
}

func parseKind(raw string) (engine.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "deposit":
		return engine.Deposit, nil
	case "withdrawal":
		return engine.Withdrawal, nil
	case "dispute":
		return engine.Dispute, nil
	case "resolve":
		return engine.Resolve, nil
	case "chargeback":
		return engine.Chargeback, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", strings.TrimSpace(raw))
	}
}

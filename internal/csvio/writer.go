package csvio

import (
	"encoding/csv"
	"io"
	"strconv"

	"paystream.org/internal/engine"
)

// DefaultPrecision is the fixed decimal precision of rendered amounts.
const DefaultPrecision int32 = 4

// Writer renders the final account mapping as CSV with the columns
// `client,available,held,total,locked`.
type Writer struct {
	cw        *csv.Writer
	precision int32
}

// NewWriter creates a Writer rendering amounts at the given precision.
// A non-positive precision falls back to DefaultPrecision.
func NewWriter(w io.Writer, precision int32) *Writer {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return &Writer{cw: csv.NewWriter(w), precision: precision}
}

// WriteAccounts writes the header row followed by one row per account.
func (w *Writer) WriteAccounts(accounts []engine.Account) error {
	if err := w.cw.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return err
	}
	for _, acc := range accounts {
		row := []string{
			strconv.FormatUint(uint64(acc.Client), 10),
			acc.Available.StringFixed(w.precision),
			acc.Held.StringFixed(w.precision),
			acc.Total().StringFixed(w.precision),
			strconv.FormatBool(acc.Locked),
		}
		if err := w.cw.Write(row); err != nil {
			return err
		}
	}
	w.cw.Flush()
	return w.cw.Error()
}

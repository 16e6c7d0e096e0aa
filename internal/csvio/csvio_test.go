package csvio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"paystream.org/internal/engine"
)

func readAll(t *testing.T, input string) ([]engine.Record, []error) {
	t.Helper()
	r := NewReader(strings.NewReader(input))
	var recs []engine.Record
	var errs []error
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return recs, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
}

func TestReaderParsesWhitespaceHeavyInput(t *testing.T) {
	input := "type, client, tx, amount\n" +
		"deposit, 1, 1, 100.1001\n" +
		"  withdrawal ,2,  2 , 50.5\n" +
		"dispute, 1, 1,\n" +
		"resolve, 1, 1\n" +
		"chargeback, 1, 1,\n"

	recs, errs := readAll(t, input)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 5 records, got %d", len(recs))
	}

	if recs[0].Kind != engine.Deposit || recs[0].Client != 1 || recs[0].Tx != 1 {
		t.Fatalf("deposit parsed wrong: %+v", recs[0])
	}
	if !recs[0].HasAmount || recs[0].Amount.String() != "100.1001" {
		t.Fatalf("deposit amount parsed wrong: %+v", recs[0])
	}
	if recs[1].Kind != engine.Withdrawal || recs[1].Client != 2 {
		t.Fatalf("withdrawal parsed wrong: %+v", recs[1])
	}
	for _, rec := range recs[2:] {
		if rec.HasAmount {
			t.Fatalf("reference record carries an amount: %+v", rec)
		}
	}
}

func TestReaderSkipsBadRowsWithoutAborting(t *testing.T) {
	input := "type,client,tx,amount\n" +
		"deposit,1,1,5.0\n" +
		"transfer,1,2,1.0\n" +
		"deposit,not-a-client,3,1.0\n" +
		"deposit,2,not-a-tx,1.0\n" +
		"deposit,2,4,not-a-number\n" +
		"deposit,2,5,2.0\n"

	recs, errs := readAll(t, input)
	if len(recs) != 2 {
		t.Fatalf("expected 2 good records, got %d", len(recs))
	}
	if len(errs) != 4 {
		t.Fatalf("expected 4 bad rows, got %d: %v", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrBadRecord) {
			t.Fatalf("error not classified as ErrBadRecord: %v", err)
		}
	}
}

func TestReaderClientAndTxBounds(t *testing.T) {
	input := "type,client,tx,amount\n" +
		"deposit,65536,1,1.0\n" + // client overflows uint16
		"deposit,1,4294967296,1.0\n" // tx overflows uint32

	recs, errs := readAll(t, input)
	if len(recs) != 0 || len(errs) != 2 {
		t.Fatalf("expected both rows rejected, got %d records %d errors", len(recs), len(errs))
	}
}

func TestWriterRendersFixedPrecision(t *testing.T) {
	accounts := []engine.Account{
		{Client: 1, Available: mustDec(t, "100.1001"), Held: mustDec(t, "0")},
		{Client: 2, Available: mustDec(t, "-6"), Held: mustDec(t, "0"), Locked: true},
	}

	var buf bytes.Buffer
	if err := NewWriter(&buf, 4).WriteAccounts(accounts); err != nil {
		t.Fatal(err)
	}

	want := "client,available,held,total,locked\n" +
		"1,100.1001,0.0000,100.1001,false\n" +
		"2,-6.0000,0.0000,-6.0000,true\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRoundTripThroughEngine(t *testing.T) {
	input := "type,client,tx,amount\n" +
		"deposit,1,1,5.0\n" +
		"deposit,1,2,3.0\n" +
		"withdrawal,1,3,4.0\n" +
		"deposit,2,4,10.0\n" +
		"dispute,2,4,\n" +
		"chargeback,2,4,\n"

	router := engine.New()
	r := NewReader(strings.NewReader(input))
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if err := router.Apply(rec); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := NewWriter(&buf, 1).WriteAccounts(router.Snapshot()); err != nil {
		t.Fatal(err)
	}
	want := "client,available,held,total,locked\n" +
		"1,4.0,0.0,4.0,false\n" +
		"2,0.0,0.0,0.0,true\n"
	if buf.String() != want {
		t.Fatalf("unexpected report:\n%s", buf.String())
	}
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

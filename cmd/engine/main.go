package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"paystream.org/internal/csvio"
	"paystream.org/internal/engine"
	"paystream.org/internal/ids"
	"paystream.org/internal/obs"
	"paystream.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		precision = flag.Int("precision", int(csvio.DefaultPrecision), "Fixed decimal precision of the report")
		archive   = flag.Bool("archive", true, "Archive the run in Postgres when PAYSTREAM_PG_DSN is set")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: engine [-precision N] <transactions.csv>")
	}
	source := flag.Arg(0)

	in, err := openInput(source)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer in.Close()

	runID := ids.New()
	eng := engine.New()
	reader := csvio.NewReader(in)

	var processed, rejected int
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			rejected++
			obs.Warn("record_skipped", map[string]any{
				"run_id": runID,
				"reason": engine.Reason(engine.ErrMalformedRecord),
				"detail": err.Error(),
			})
			continue
		}
		if err := eng.Apply(rec); err != nil {
			rejected++
			obs.Warn("record_rejected", map[string]any{
				"run_id": runID,
				"kind":   string(rec.Kind),
				"client": rec.Client,
				"tx":     rec.Tx,
				"reason": engine.Reason(err),
			})
			continue
		}
		processed++
	}

	snapshot := eng.Snapshot()
	writer := csvio.NewWriter(os.Stdout, int32(*precision))
	if err := writer.WriteAccounts(snapshot); err != nil {
		log.Fatalf("write report: %v", err)
	}

	obs.Info("run_complete", map[string]any{
		"run_id":    runID,
		"source":    source,
		"processed": processed,
		"rejected":  rejected,
		"accounts":  len(snapshot),
	})

	if dsn := os.Getenv("PAYSTREAM_PG_DSN"); dsn != "" && *archive {
		if err := archiveRun(dsn, runID, source, processed, rejected, snapshot); err != nil {
			log.Fatalf("archive run: %v", err)
		}
	}
}

func openInput(source string) (io.ReadCloser, error) {
	if source == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(source)
}

func archiveRun(dsn, runID, source string, processed, rejected int, snapshot []engine.Account) error {
	store, err := pg.Open(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run := pg.Run{
		ID:        runID,
		Source:    source,
		Processed: processed,
		Rejected:  rejected,
	}
	if err := store.SaveRun(ctx, run, snapshot); err != nil {
		return fmt.Errorf("save run %s: %w", runID, err)
	}
	return nil
}

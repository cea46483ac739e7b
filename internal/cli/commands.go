package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// RunSweep runs the named jobs synchronously, or every job when none are
// named. All jobs run even if one fails; the failures are joined.
func RunSweep(ctx context.Context, app *App, jobs []string, w io.Writer) error {
	if len(jobs) == 0 {
		for _, job := range app.Scheduler.Jobs() {
			jobs = append(jobs, job.Name)
		}
	}

	var errs []error
	for _, name := range jobs {
		run, err := app.Scheduler.RunNow(ctx, name)
		if run != nil {
			PrintSweepSummary(w, run)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// RunUnmatch breaks the link of recordID and its counterpart
func RunUnmatch(ctx context.Context, app *App, recordID string, w io.Writer) error {
	if err := app.Engine.Unmatch(ctx, recordID); err != nil {
		return err
	}
	fmt.Fprintf(w, "Unmatched %s\n", recordID)
	return nil
}

// RunImportCSV reads a CSV export, saves every valid row and optionally
// reconciles the saved records.
func RunImportCSV(ctx context.Context, app *App, flags ImportFlags, w io.Writer) error {
	f, err := os.Open(flags.Path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	records, rowErrors, err := app.Converter.ReadCSV(f, flags.OwnerID, flags.Kind)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", flags.Path, err)
	}

	saved := make([]*record.FinancialRecord, 0, len(records))
	var conflicts []error
	for _, rec := range records {
		if err := app.Store.SaveRecord(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrRecordConflict) {
				conflicts = append(conflicts, err)
				continue
			}
			PrintImportSummary(w, len(saved), rowErrors, conflicts, nil)
			return fmt.Errorf("failed to save record %s: %w", rec.ID, err)
		}
		saved = append(saved, rec)
	}

	var result *reconcile.BatchResult
	if flags.Reconcile && len(saved) > 0 {
		result, err = app.Engine.ReconcileBatch(ctx, saved)
		if err != nil {
			PrintImportSummary(w, len(saved), rowErrors, conflicts, result)
			return err
		}
	}

	PrintImportSummary(w, len(saved), rowErrors, conflicts, result)
	app.Logger.Info("csv import finished",
		"file", flags.Path,
		"kind", flags.Kind,
		"saved", len(saved),
		"rejected", len(rowErrors),
		"conflicts", len(conflicts))
	return nil
}

// RunStats prints aggregate counts
func RunStats(ctx context.Context, store storage.Repository, w io.Writer) error {
	stats, err := store.GetStats(ctx)
	if err != nil {
		return err
	}
	PrintStats(w, stats)
	return nil
}

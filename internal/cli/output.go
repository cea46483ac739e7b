package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/receipt-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, command string) {
	fmt.Fprintf(w, "receipt-reconciler: %s\n", command)
}

// PrintSweepSummary prints the result of one sweep run
func PrintSweepSummary(w io.Writer, run *storage.SweepRun) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Sweep %s (run %d): %s\n", run.Job, run.ID, run.Status)
	c := run.Counts
	fmt.Fprintf(w, "Summary: Found=%d Matched=%d NoMatch=%d Skipped=%d Errors=%d\n",
		c.Found, c.Matched, c.NoMatch, c.Skipped, c.Errored)
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "Error: %s\n", run.ErrorMessage)
	}
}

// PrintImportSummary prints what an import saved and rejected
func PrintImportSummary(w io.Writer, saved int, rowErrors []*ingest.RowError, conflicts []error, result *reconcile.BatchResult) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Imported: Saved=%d Rejected=%d Conflicts=%d\n", saved, len(rowErrors), len(conflicts))

	if len(rowErrors) > 0 {
		fmt.Fprintln(w, "\nRejected rows:")
		for _, err := range rowErrors {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}

	if len(conflicts) > 0 {
		fmt.Fprintln(w, "\nConflicting records (not changed):")
		for _, err := range conflicts {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}

	if result != nil {
		c := result.Counts
		fmt.Fprintf(w, "\nReconciled: Matched=%d NoMatch=%d Skipped=%d Errors=%d\n",
			c.Matched, c.NoMatch, c.Skipped, c.Errored)
	}
}

// PrintStats prints aggregate record and match counts
func PrintStats(w io.Writer, stats *storage.Stats) {
	fmt.Fprintf(w, "Records: %d | Active matches: %d | Duplicate flags: %d\n",
		stats.TotalRecords, stats.ActiveMatches, stats.DuplicateFlags)
	for _, kind := range []record.Kind{record.KindReceipt, record.KindTransaction} {
		ks := stats.ByKind[kind]
		fmt.Fprintf(w, "  %-12s unmatched=%d matched=%d needs_review=%d\n",
			kind, ks.Unmatched, ks.Matched, ks.NeedsReview)
	}

	receipts := stats.ByKind[record.KindReceipt]
	if total := receipts.Unmatched + receipts.Matched + receipts.NeedsReview; total > 0 {
		fmt.Fprintf(w, "Receipt match rate: %.1f%%\n", float64(receipts.Matched)/float64(total)*100)
	}
}

package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/diligence/internal/metrics"
)

// printStats displays the in-memory runtime statistics of this run.
func printStats(w io.Writer, stats metrics.Snapshot) {
	fmt.Fprintf(w, "Run Statistics\n")
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", stats.UptimeSeconds)

	if len(stats.Operations) == 0 {
		fmt.Fprintln(w, "\nNo operations recorded.")
		return
	}

	for _, op := range stats.Operations {
		fmt.Fprintf(w, "\n%s:\n", op.Name)
		printOpStats(w, op)
		if op.InputTokens > 0 || op.OutputTokens > 0 {
			printTokenStats(w, op)
		}
	}
}

func printOpStats(w io.Writer, op metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Count:    %d\n", op.Count)
	fmt.Fprintf(w, "  Total:    %d ms\n", op.TotalTimeMs)
	fmt.Fprintf(w, "  Avg:      %.1f ms\n", op.AvgTimeMs)
	fmt.Fprintf(w, "  Min/Max:  %d / %d ms\n", op.MinTimeMs, op.MaxTimeMs)
}

func printTokenStats(w io.Writer, op metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Tokens:   %d in / %d out\n", op.InputTokens, op.OutputTokens)
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/input"
	"github.com/sells-group/address-resolver/internal/pipeline"
)

var (
	batchRetryRejected bool
	batchLimit         int
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Resolve every person in a CSV or XLSX file",
	Long:  "Reads people from a CSV or XLSX file with first_name, last_name, city, state, employment and education columns. Records that already finished are skipped; interrupted records resume where they stopped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		inputs, err := input.ReadFile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "batch: read input")
		}
		if batchLimit > 0 && len(inputs) > batchLimit {
			inputs = inputs[:batchLimit]
		}
		if len(inputs) == 0 {
			zap.L().Info("no people to resolve")
			return nil
		}

		env, err := initPipeline(ctx, func(o *pipeline.Options) { o.RetryRejected = batchRetryRejected })
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting batch",
			zap.String("file", args[0]),
			zap.Int("count", len(inputs)),
			zap.Bool("retry_rejected", batchRetryRejected),
		)

		sum, err := env.Pipeline.Run(ctx, inputs)
		formatSummary(os.Stdout, sum)
		if err != nil {
			return eris.Wrap(err, "batch interrupted")
		}
		return nil
	},
}

// formatSummary writes per-outcome counts of a run to out.
func formatSummary(out io.Writer, s pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "OUTCOME\tCOUNT")
	_, _ = fmt.Fprintf(w, "resolved\t%d\n", s.Resolved)
	_, _ = fmt.Fprintf(w, "address_only\t%d\n", s.AddressOnly)
	_, _ = fmt.Fprintf(w, "rejected\t%d\n", s.Rejected)
	_, _ = fmt.Fprintf(w, "no_candidates\t%d\n", s.NoCandidates)
	_, _ = fmt.Fprintf(w, "errors\t%d\n", s.Errors)
	_, _ = fmt.Fprintf(w, "skipped\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "total\t%d\n", s.Total)
	_ = w.Flush()
}

func init() {
	batchCmd.Flags().BoolVar(&batchRetryRejected, "retry-rejected", false, "re-search records that ended rejected or no_candidates")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of people to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/monitoring"
	"github.com/sells-group/address-resolver/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect stored resolution records",
	Long:  "Commands for listing, viewing, exporting and counting resolution records.",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resolution records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := recordFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "records list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		formatRecordsList(os.Stdout, recs)
		return nil
	},
}

// -- records show --

var recordsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show a record by its query key (first|last|city|ST)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetRecord(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "records show")
		}
		return writeRecord(os.Stdout, rec, false)
	},
}

// -- records export --

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records in the CRM shape",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if format != "json" && format != "csv" {
			return eris.Errorf("records export: unknown format %q (json or csv)", format)
		}
		filter, err := recordFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "records export")
		}

		if format == "csv" {
			return writeExportCSV(os.Stdout, recs)
		}
		return writeExportJSON(os.Stdout, recs)
	},
}

// -- records stats --

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count records per status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "records stats")
		}
		formatStatusCounts(os.Stdout, counts)
		return nil
	},
}

// -- records health --

var recordsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check stored records against alert thresholds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st).Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "records health")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		formatHealth(os.Stdout, snap, alerts)

		if notify, _ := cmd.Flags().GetBool("notify"); notify {
			alerter.SendAlerts(ctx, alerts)
		}
		return nil
	},
}

func init() {
	for c, limit := range map[*cobra.Command]int{recordsListCmd: 50, recordsExportCmd: 0} {
		c.Flags().String("status", "", "filter by status (resolved, address_only, rejected, ...)")
		c.Flags().Int("limit", limit, "max number of records (0 = up to 1000)")
		c.Flags().Int("offset", 0, "number of records to skip")
	}
	recordsExportCmd.Flags().String("format", "json", "output format: json or csv")
	recordsHealthCmd.Flags().Bool("notify", false, "send triggered alerts to the configured webhook")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	recordsCmd.AddCommand(recordsExportCmd)
	recordsCmd.AddCommand(recordsStatsCmd)
	recordsCmd.AddCommand(recordsHealthCmd)
	rootCmd.AddCommand(recordsCmd)
}

func recordFilterFromFlags(cmd *cobra.Command) (store.RecordFilter, error) {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	f := store.RecordFilter{Status: model.Status(status), Limit: limit, Offset: offset}
	if status != "" && !f.Status.Valid() {
		return f, eris.Errorf("unknown status %q", status)
	}
	return f, nil
}

// formatRecordsList writes a tabular list of records to out.
func formatRecordsList(out io.Writer, recs []model.ResolutionRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "QUERY\tSTATUS\tREASON\tCONFIDENCE\tADDRESS\tCHECKED")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Query.String(),
			r.Status,
			dash(r.Reason),
			dash(string(r.Confidence)),
			dash(r.Address),
			r.LastChecked.UTC().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatStatusCounts writes per-status counts in a stable order.
func formatStatusCounts(out io.Writer, counts map[model.Status]int) {
	statuses := make([]model.Status, 0, len(counts))
	total := 0
	for s, n := range counts {
		statuses = append(statuses, s)
		total += n
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}

// formatHealth writes a record health snapshot and any alerts to out.
func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METRIC\tVALUE")
	_, _ = fmt.Fprintf(w, "total\t%d\n", snap.Total)
	_, _ = fmt.Fprintf(w, "in_flight\t%d\n", snap.InFlight)
	_, _ = fmt.Fprintf(w, "blocked\t%d\n", snap.Blocked)
	_, _ = fmt.Fprintf(w, "search_failed\t%d\n", snap.SearchFailed)
	_, _ = fmt.Fprintf(w, "oracle_errors\t%d\n", snap.OracleErrors)
	_, _ = fmt.Fprintf(w, "hit_rate\t%.1f%%\n", snap.HitRate*100)
	_, _ = fmt.Fprintf(w, "reject_rate\t%.1f%%\n", snap.RejectRate*100)
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	_, _ = fmt.Fprintln(out)
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}

// exportRow pairs the query with its CRM export.
type exportRow struct {
	Query  model.PersonQuery `json:"query"`
	Status model.Status      `json:"status"`
	model.Export
}

func writeExportJSON(out io.Writer, recs []model.ResolutionRecord) error {
	rows := make([]exportRow, len(recs))
	for i := range recs {
		rows[i] = exportRow{Query: recs[i].Query, Status: recs[i].Status, Export: recs[i].ToExport()}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

var exportHeader = []string{
	"first_name", "last_name", "city", "state", "status",
	"address", "valuation", "beds", "baths", "sqft", "year_built",
	"property_type", "ownership_likelihood", "confidence", "source", "last_checked",
}

func writeExportCSV(out io.Writer, recs []model.ResolutionRecord) error {
	w := csv.NewWriter(out)
	if err := w.Write(exportHeader); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for i := range recs {
		r := &recs[i]
		e := r.ToExport()
		checked := ""
		if e.LastChecked != nil {
			checked = e.LastChecked.Format(time.RFC3339)
		}
		row := []string{
			r.Query.FirstName, r.Query.LastName, r.Query.City, r.Query.State, string(r.Status),
			e.Address, num(e.Valuation), num(e.Beds), num(e.Baths), integer(e.Sqft), integer(e.YearBuilt),
			e.PropertyType, e.OwnershipLikelihood, string(e.Confidence), e.Source, checked,
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush csv")
}

func num(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func integer(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

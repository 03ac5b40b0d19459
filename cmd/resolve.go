package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/address-resolver/internal/model"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a single person",
	Long:  "Runs one person through the pipeline and prints the stored record. A record that already finished is printed without new lookups.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in := inputFromFlags(cmd)
		if in.Query.FirstName == "" && in.Query.LastName == "" {
			return eris.New("resolve: --first or --last is required")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Pipeline.Resolve(ctx, in)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		exportOnly, _ := cmd.Flags().GetBool("export")
		return writeRecord(os.Stdout, rec, exportOnly)
	},
}

func inputFromFlags(cmd *cobra.Command) model.Input {
	first, _ := cmd.Flags().GetString("first")
	last, _ := cmd.Flags().GetString("last")
	city, _ := cmd.Flags().GetString("city")
	state, _ := cmd.Flags().GetString("state")
	employment, _ := cmd.Flags().GetString("employment")
	education, _ := cmd.Flags().GetString("education")

	q := model.NewPersonQuery(first, last, city, state)
	return model.Input{
		Query: q,
		Profile: model.PersonProfile{
			Employment: employment,
			Education:  education,
			City:       q.City,
			State:      q.State,
		},
	}
}

// recordView is the JSON shape printed for a record.
type recordView struct {
	*model.ResolutionRecord
	Export model.Export `json:"export"`
}

// writeRecord prints rec as indented JSON, optionally only its export shape.
func writeRecord(w io.Writer, rec *model.ResolutionRecord, exportOnly bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if exportOnly {
		return enc.Encode(rec.ToExport())
	}
	return enc.Encode(recordView{ResolutionRecord: rec, Export: rec.ToExport()})
}

func init() {
	resolveCmd.Flags().String("first", "", "first name")
	resolveCmd.Flags().String("last", "", "last name")
	resolveCmd.Flags().String("city", "", "city")
	resolveCmd.Flags().String("state", "", "state name or two-letter code")
	resolveCmd.Flags().String("employment", "", "known employer, used for disambiguation")
	resolveCmd.Flags().String("education", "", "known school, used for disambiguation")
	resolveCmd.Flags().Bool("export", false, "print only the CRM export shape")
	rootCmd.AddCommand(resolveCmd)
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"faultcore/internal/analysis"
	"faultcore/internal/i18n"
)

type reportFlags struct {
	run string
}

func newReportCommand(a *app) *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "report [RESULTS]",
		Short: "Summarize analysis results per target",
		Long: `Summarize analysis results per target.

Results are read from a JSON file, from stdin with -, or from the blob
archive with --run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				res *analysis.Results
				err error
			)
			switch {
			case flags.run != "" && len(args) > 0:
				return errors.New("report: give either a results file or --run")
			case flags.run != "":
				archive, aerr := a.openArchive(cmd.Context())
				if aerr != nil {
					return aerr
				}
				res, err = archive.Results(cmd.Context(), flags.run)
			case len(args) == 1 && args[0] != "-":
				f, oerr := os.Open(args[0])
				if oerr != nil {
					return fmt.Errorf("open results: %w", oerr)
				}
				res, err = analysis.Ingest(f)
				_ = f.Close()
			case len(args) == 1:
				res, err = analysis.Ingest(cmd.InOrStdin())
			default:
				return errors.New("report: missing results file or --run")
			}
			if err != nil {
				return err
			}
			return printReport(a, res)
		},
	}
	cmd.Flags().StringVar(&flags.run, "run", "", "Read the results of this archived run")
	return cmd
}

type reportRowJSON struct {
	Kind  analysis.RowKind `json:"kind"`
	Count int              `json:"count,omitempty"`
	Value *float64         `json:"value,omitempty"`
}

type reportItemJSON struct {
	Target   string          `json:"target"`
	Rows     []reportRowJSON `json:"rows"`
	Warnings []string        `json:"warnings,omitempty"`
}

func printReport(a *app, res *analysis.Results) error {
	items := analysis.Report(res)
	if a.jsonOutput {
		out := struct {
			RunID   string           `json:"run_id"`
			Targets []reportItemJSON `json:"targets"`
		}{RunID: res.RunID, Targets: make([]reportItemJSON, 0, len(items))}
		for _, item := range items {
			j := reportItemJSON{Target: item.Target, Warnings: item.Warnings}
			for _, row := range item.Rows {
				r := reportRowJSON{Kind: row.Kind, Count: row.Count}
				if row.Kind == analysis.RowProbability {
					v := row.Value
					r.Value = &v
				}
				j.Rows = append(j.Rows, r)
			}
			out.Targets = append(out.Targets, j)
		}
		return a.printJSON(out)
	}
	for _, item := range items {
		fmt.Fprintln(a.out, item.Target)
		for _, row := range item.Rows {
			fmt.Fprintf(a.out, "  %s\n", rowText(a, row))
		}
		for _, w := range item.Warnings {
			fmt.Fprintf(a.out, "  ! %s\n", w)
		}
	}
	return nil
}

func rowText(a *app, row analysis.Row) string {
	switch row.Kind {
	case analysis.RowProbability:
		return a.loc.Text(i18n.KeyReportProbability, strconv.FormatFloat(row.Value, 'g', 6, 64))
	case analysis.RowImportance:
		return a.loc.Text(i18n.KeyReportImportance, strconv.Itoa(row.Count))
	default:
		return a.loc.Text(i18n.KeyReportProducts, strconv.Itoa(row.Count))
	}
}

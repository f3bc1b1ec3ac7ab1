package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"faultcore/internal/analysis"
	"faultcore/internal/blob"
)

type settingsFlags struct {
	missionTime     float64
	limitOrder      int
	approximation   string
	probability     bool
	importance      bool
	primeImplicants bool
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.missionTime, "mission-time", analysis.DefaultMissionTime, "Mission time in hours")
	cmd.Flags().IntVar(&f.limitOrder, "limit-order", analysis.DefaultLimitOrder, "Maximum product order")
	cmd.Flags().StringVar(&f.approximation, "approximation", string(analysis.ApproximationNone), "none, rare-event or mcub")
	cmd.Flags().BoolVar(&f.probability, "probability", false, "Request probability analysis")
	cmd.Flags().BoolVar(&f.importance, "importance", false, "Request importance analysis")
	cmd.Flags().BoolVar(&f.primeImplicants, "prime-implicants", false, "Request prime implicants instead of minimal cut sets")
}

func (f *settingsFlags) settings() (analysis.Settings, error) {
	approx, err := analysis.ParseApproximation(f.approximation)
	if err != nil {
		return analysis.Settings{}, err
	}
	return analysis.Settings{
		MissionTime:     f.missionTime,
		LimitOrder:      f.limitOrder,
		Approximation:   approx,
		Probability:     f.probability,
		Importance:      f.importance,
		PrimeImplicants: f.primeImplicants,
	}, nil
}

type analysisInputFlags struct {
	settingsFlags
	output  string
	archive bool
}

func newAnalysisInputCommand(a *app) *cobra.Command {
	flags := &analysisInputFlags{}
	cmd := &cobra.Command{
		Use:   "analysis-input FILE...",
		Short: "Export the input document of an analysis run",
		Long: `Export the input document of an analysis run.

The model files are validated and combined with the analysis settings into
a JSON document with a fresh run id. With --archive, the input and the model
are also stored in the configured blob archive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := buildInput(a, &flags.settingsFlags, args)
			if err != nil {
				return err
			}
			if flags.archive {
				archive, err := a.openArchive(cmd.Context())
				if err != nil {
					return err
				}
				if err := archiveInput(cmd.Context(), a, archive, in); err != nil {
					return err
				}
			}
			if flags.output == "" || flags.output == "-" {
				return in.Encode(a.out)
			}
			f, err := os.Create(flags.output)
			if err != nil {
				return fmt.Errorf("create %s: %w", flags.output, err)
			}
			if err := in.Encode(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", flags.output, err)
			}
			fmt.Fprintln(a.errOut, in.RunID)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.output, "output", "o", "-", "Destination file, - for stdout")
	cmd.Flags().BoolVar(&flags.archive, "archive", false, "Store the input and model in the blob archive")
	return cmd
}

func buildInput(a *app, flags *settingsFlags, files []string) (*analysis.Input, error) {
	settings, err := flags.settings()
	if err != nil {
		return nil, err
	}
	model, err := a.loadModel(files)
	if err != nil {
		return nil, err
	}
	return analysis.NewInput(model.Snapshot, settings)
}

func (a *app) openArchive(ctx context.Context) (*analysis.Archive, error) {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, err
	}
	return analysis.NewArchive(store), nil
}

func archiveInput(ctx context.Context, a *app, archive *analysis.Archive, in *analysis.Input) error {
	if _, err := archive.PutInput(ctx, in); err != nil {
		return err
	}
	if _, err := archive.PutModel(ctx, in.RunID, in.Model); err != nil {
		return err
	}
	a.logger.Info("analysis input archived", "run_id", in.RunID, "driver", a.cfg.Blob.Driver)
	return nil
}

type analyzeFlags struct {
	settingsFlags
	engine     string
	engineArgs []string
	archive    bool
}

func newAnalyzeCommand(a *app) *cobra.Command {
	flags := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Run an external analysis engine and report its results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in, err := buildInput(a, &flags.settingsFlags, args)
			if err != nil {
				return err
			}
			engine := analysis.NewExecEngine(flags.engine, flags.engineArgs...)
			engine.Logger = a.logger
			res, err := engine.Run(ctx, in)
			if err != nil {
				return err
			}
			if flags.archive {
				archive, err := a.openArchive(ctx)
				if err != nil {
					return err
				}
				if err := archiveInput(ctx, a, archive, in); err != nil {
					return err
				}
				if _, err := archive.PutResults(ctx, res); err != nil {
					return err
				}
			}
			return printReport(a, res)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.engine, "engine", "", "Path of the analysis engine binary")
	cmd.Flags().StringSliceVar(&flags.engineArgs, "engine-arg", nil, "Argument passed to the engine")
	_ = cmd.MarkFlagRequired("engine")
	cmd.Flags().BoolVar(&flags.archive, "archive", false, "Store input, model and results in the blob archive")
	return cmd
}

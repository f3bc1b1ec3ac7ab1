package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"faultcore/internal/config"
	"faultcore/internal/core"
	"faultcore/internal/i18n"
	"faultcore/pkg/domain"
)

type editFlags struct {
	models  []string
	output  string
	trace   bool
	metrics bool
}

type editOutcome struct {
	Step        int    `json:"step"`
	Op          string `json:"op"`
	Description string `json:"description"`
}

func newEditCommand(a *app) *cobra.Command {
	flags := &editFlags{}
	cmd := &cobra.Command{
		Use:   "edit SCRIPT",
		Short: "Apply a YAML edit script to a model",
		Long: `Apply a YAML edit script to a model.

The model is the configured storage backend, optionally replaced first by
the files given with --model. Every step runs as one undoable command and
the script may undo and redo its own steps. The first failing step stops
the script and leaves the model as it was before that step.

Example script:

  steps:
    - op: add-basic-event
      name: B1
      probability: 0.01
    - op: add-basic-event
      name: B2
      probability: 0.02
    - op: add-fault-tree
      name: FT
      gate: {name: TOP, connective: or, args: [B1, B2]}
    - op: undo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, a, flags, args[0])
		},
	}
	cmd.Flags().StringSliceVarP(&flags.models, "model", "m", nil, "opsa-mef files loaded before the script")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the edited model as opsa-mef to this file, - for stdout")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "Write a JSON span per operation to stderr")
	cmd.Flags().BoolVar(&flags.metrics, "metrics", false, "Print operation counters to stderr when done")
	return cmd
}

func openScript(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edit script: %w", err)
	}
	return f, nil
}

func runEdit(cmd *cobra.Command, a *app, flags *editFlags, scriptPath string) error {
	ctx := cmd.Context()
	rc, err := openScript(scriptPath)
	if err != nil {
		return err
	}
	sc, err := parseScript(rc)
	_ = rc.Close()
	if err != nil {
		return err
	}

	engine := domain.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(ctx, a.cfg.Storage, engine)
	if err != nil {
		return err
	}
	defer func() { _ = core.CloseStore(store) }()

	registry := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}
	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithUndoLimit(a.cfg.UndoLimit),
		core.WithMetricsRecorder(metrics),
	}
	if flags.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.errOut)))
	}
	svc := core.NewService(store, engine, opts...)

	if len(flags.models) > 0 {
		model, err := a.loadModel(flags.models)
		if err != nil {
			return err
		}
		if err := svc.Load(ctx, model.Snapshot); err != nil {
			return err
		}
	}

	outcomes := make([]editOutcome, 0, len(sc.Steps))
	var stepErr error
	for i, st := range sc.Steps {
		desc, err := st.apply(ctx, svc)
		if err != nil {
			stepErr = fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
			break
		}
		text := a.loc.Message(desc)
		switch st.Op {
		case opUndo:
			text = a.loc.Text(i18n.KeyUndo, text)
		case opRedo:
			text = a.loc.Text(i18n.KeyRedo, text)
		}
		outcomes = append(outcomes, editOutcome{Step: i + 1, Op: st.Op, Description: text})
		if !a.jsonOutput {
			fmt.Fprintln(a.out, text)
		}
	}
	if a.jsonOutput {
		if err := a.printJSON(outcomes); err != nil {
			return err
		}
	}
	if flags.metrics {
		if err := printEditMetrics(a.errOut, registry); err != nil {
			return err
		}
	}
	if stepErr != nil {
		return stepErr
	}

	if flags.output != "" {
		snapshot, err := svc.Snapshot()
		if err != nil {
			return err
		}
		if err := writeModel(a, flags.output, snapshot); err != nil {
			return err
		}
		svc.History().MarkClean()
	}
	if !svc.History().IsClean() && a.cfg.Storage.Driver == config.StorageMemory {
		a.logger.Warn(a.loc.Text(i18n.KeyUnsaved))
	}
	return nil
}

// printEditMetrics writes one line per operation and status from the edit
// operation counter.
func printEditMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		if mf.GetName() != "faultcore_edit_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			lines = append(lines, fmt.Sprintf("%s %s %.0f", labels["operation"], labels["status"], m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Package cli implements the faultctl commands. Each subcommand lives in its
// own file; this file builds the root command and the shared runtime.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"faultcore/internal/config"
	"faultcore/internal/i18n"
	"faultcore/internal/logging"
	"faultcore/internal/mef"
	"faultcore/pkg/domain"
)

// Version is injected from main at build time.
var Version = "dev"

// app is the runtime shared by every subcommand, resolved before any of them
// runs.
type app struct {
	out    io.Writer
	errOut io.Writer

	jsonOutput bool
	locale     string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
	loc    *i18n.Localizer
}

// NewRootCommand builds the command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "faultctl",
		Short:         "Edit, validate and export fault-tree models",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&a.locale, "locale", "", "Message locale (overrides FAULTCORE_LOCALE)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides FAULTCORE_LOG_LEVEL)")

	root.AddCommand(
		newValidateCommand(a),
		newEditCommand(a),
		newExportCommand(a),
		newAnalysisInputCommand(a),
		newAnalyzeCommand(a),
		newReportCommand(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.locale != "" {
		cfg.Locale = a.locale
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Writer:  a.errOut,
		Service: "faultctl",
	})
	if err != nil {
		return err
	}
	bundle, err := i18n.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.loc = bundle.Localizer(cfg.Locale)
	return nil
}

// Execute runs root and returns the process exit code. Errors are rendered in
// the configured locale.
func Execute(ctx context.Context, root *cobra.Command) int {
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	locale, _ := cmd.Flags().GetString("locale")
	printError(cmd.ErrOrStderr(), jsonOutput, locale, err)
	return exitCode(err)
}

// Exit codes.
const (
	exitGeneral    = 1
	exitModel      = 2
	exitEditFailed = 3
)

func exitCode(err error) int {
	var derr *domain.Error
	if errors.As(err, &derr) {
		if derr.Code == domain.CodeInitialization {
			return exitModel
		}
		return exitEditFailed
	}
	return exitGeneral
}

func printError(w io.Writer, jsonOutput bool, locale string, err error) {
	message := err.Error()
	if bundle, lerr := i18n.Load(); lerr == nil {
		if locale == "" {
			if cfg, cerr := config.Load(); cerr == nil {
				locale = cfg.Locale
			}
		}
		message = bundle.Localizer(locale).Error(err)
	}
	if !jsonOutput {
		fmt.Fprintf(w, "Error: %s\n", message)
		return
	}
	body := map[string]any{"message": message}
	var derr *domain.Error
	if errors.As(err, &derr) {
		body["code"] = derr.Code
		if len(derr.Metadata) > 0 {
			body["metadata"] = derr.Metadata
		}
	}
	data, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
	fmt.Fprintln(w, string(data))
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func (a *app) loadModel(paths []string) (*mef.Model, error) {
	model, err := mef.Load(paths...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("model loaded", "files", paths, "events", len(model.Snapshot.Events),
		"fault_trees", len(model.Snapshot.FaultTrees))
	return model, nil
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"faultcore/internal/core"
	"faultcore/internal/infra/persistence/memory"
	"faultcore/internal/mef"
	"faultcore/pkg/domain"
)

type exportFlags struct {
	output string
}

func newExportCommand(a *app) *cobra.Command {
	flags := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export [FILE...]",
		Short: "Write a model as a single opsa-mef document",
		Long: `Write a model as a single opsa-mef document.

With files, the files are merged and validated first. Without files, the
model held by the configured storage backend is exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot memory.Snapshot
			if len(args) > 0 {
				model, err := a.loadModel(args)
				if err != nil {
					return err
				}
				snapshot = model.Snapshot
			} else {
				store, err := core.OpenPersistentStore(cmd.Context(), a.cfg.Storage, domain.NewDefaultRulesEngine())
				if err != nil {
					return err
				}
				defer func() { _ = core.CloseStore(store) }()
				snapshot = store.ExportState()
			}
			return writeModel(a, flags.output, snapshot)
		},
	}
	cmd.Flags().StringVarP(&flags.output, "output", "o", "-", "Destination file, - for stdout")
	return cmd
}

func writeModel(a *app, path string, snapshot memory.Snapshot) error {
	if path == "" || path == "-" {
		return mef.Write(a.out, snapshot)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := mef.Write(f, snapshot); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	a.logger.Info("model exported", "path", path, "events", len(snapshot.Events))
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"faultcore/internal/mef"
)

type modelSummary struct {
	Name       string   `json:"name"`
	Files      []string `json:"files"`
	Events     int      `json:"events"`
	Gates      int      `json:"gates"`
	FaultTrees []string `json:"fault_trees"`
}

func summarize(a *app, model *mef.Model) modelSummary {
	s := modelSummary{
		Name:       a.loc.ModelName(model.Snapshot.Name),
		Files:      model.Files,
		Events:     len(model.Snapshot.Events),
		FaultTrees: make([]string, 0, len(model.Snapshot.FaultTrees)),
	}
	for _, ev := range model.Snapshot.Events {
		if ev.IsGate() {
			s.Gates++
		}
	}
	for _, ft := range model.Snapshot.FaultTrees {
		s.FaultTrees = append(s.FaultTrees, ft.Name)
	}
	return s
}

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Load opsa-mef files and check the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := a.loadModel(args)
			if err != nil {
				return err
			}
			s := summarize(a, model)
			if a.jsonOutput {
				return a.printJSON(s)
			}
			fmt.Fprintf(a.out, "%s: %d events, %d gates, %d fault trees\n", s.Name, s.Events, s.Gates, len(s.FaultTrees))
			return nil
		},
	}
}

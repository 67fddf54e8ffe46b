package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dunamismax/cutout/internal/inference"
)

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and fetch model weights",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List models known to the onnx engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range inference.ModelNames() {
				spec, _ := inference.LookupModel(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%dx%d\n", name, spec.InputSize, spec.InputSize)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pull MODEL",
		Short: "Ensure MODEL weights are present in the model directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := inference.LookupModel(args[0]); !ok {
				return fmt.Errorf("%w: %s", inference.ErrUnknownModel, args[0])
			}
			store, err := newWeightStore(a.cfg)
			if err != nil {
				return err
			}
			path, err := store.Path(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", path)
			return nil
		},
	})

	return cmd
}

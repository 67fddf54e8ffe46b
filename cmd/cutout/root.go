package main

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dunamismax/cutout/internal/logging"
)

func newRootCmd(a *app) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "cutout",
		Short:         "Background removal utilities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if cmd.Flags().Changed("log-level") {
				a.logger = logging.New(cmd.ErrOrStderr(), logLevel, a.cfg.Log.Format)
			}
			if cmd.Flags().Changed("engine") {
				a.cfg.Inference.Engine = strings.ToLower(strings.TrimSpace(a.cfg.Inference.Engine))
			}
			zerolog.DefaultContextLogger = &a.logger
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", a.cfg.Log.Level, "log level (debug, info, warn, error)")
	flags.StringVar(&a.cfg.Inference.Engine, "engine", a.cfg.Inference.Engine, "inference engine (remote, onnx)")
	flags.StringVar(&a.cfg.Inference.RembgURL, "rembg-url", a.cfg.Inference.RembgURL, "base URL of the rembg server used by the remote engine")
	flags.StringVar(&a.cfg.Inference.ModelDir, "model-dir", a.cfg.Inference.ModelDir, "directory holding <model>.onnx weights")

	root.AddCommand(
		newRemoveCmd(a),
		newServeCmd(a),
		newModelsCmd(a),
	)
	return root
}

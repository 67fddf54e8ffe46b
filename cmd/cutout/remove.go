package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dunamismax/cutout/internal/domain"
)

func newRemoveCmd(a *app) *cobra.Command {
	var (
		output  string
		noAlpha bool
		params  = domain.DefaultParams()
	)

	cmd := &cobra.Command{
		Use:   "remove INPUT",
		Short: "Remove the background from INPUT and save it as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noAlpha {
				params.AlphaMatting = false
			}
			if err := params.Validate(); err != nil {
				return err
			}

			input := args[0]
			data, err := readInput(input)
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				target = defaultOutputPath(input)
			}

			return a.withImaging(cmd.Context(), func(ctx context.Context) error {
				p, err := a.buildPipeline(nil)
				if err != nil {
					return err
				}
				defer p.cache.Purge()

				out, err := p.remover.Remove(ctx, data, params)
				if err != nil {
					return err
				}
				if err := os.WriteFile(target, out, 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "output path (defaults to <input>_no_bg.png)")
	flags.StringVar(&params.Model, "model", params.Model, "model name")
	flags.BoolVar(&params.AlphaMatting, "alpha-matting", params.AlphaMatting, "enable alpha matting for smoother edges")
	flags.BoolVar(&noAlpha, "no-alpha-matting", false, "disable alpha matting")
	flags.IntVar(&params.ForegroundThreshold, "alpha-matting-foreground-threshold", params.ForegroundThreshold, "alpha matting foreground threshold (0-255)")
	flags.IntVar(&params.BackgroundThreshold, "alpha-matting-background-threshold", params.BackgroundThreshold, "alpha matting background threshold (0-255)")
	flags.IntVar(&params.ErodeSize, "alpha-matting-erode-size", params.ErodeSize, "alpha matting erode size (1-100)")
	cmd.MarkFlagsMutuallyExclusive("alpha-matting", "no-alpha-matting")

	return cmd
}

func readInput(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// defaultOutputPath places "<stem>_no_bg.png" next to the input.
func defaultOutputPath(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(filepath.Dir(input), stem+"_no_bg.png")
}

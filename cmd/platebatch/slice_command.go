package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"platebatch/internal/services/prusaslicer"
)

func newSliceCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "slice <archive>",
		Short: "Export G-code for a package with the configured slicer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			archive := args[0]
			gcode := strings.TrimSpace(outputPath)
			if gcode == "" {
				gcode = strings.TrimSuffix(archive, filepath.Ext(archive)) + ".gcode"
			}

			client, err := prusaslicer.New(cfg.Slicer.Binary, cfg.SlicerTimeout(),
				prusaslicer.WithLogger(logger),
				prusaslicer.WithPrinterTechnology(cfg.Slicer.PrinterTechnology),
			)
			if err != nil {
				return err
			}
			result, err := client.Slice(cmd.Context(), archive, gcode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s in %s\n", result.GCodePath, formatDuration(result.Duration))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "G-code destination (default: archive path with .gcode)")
	return cmd
}

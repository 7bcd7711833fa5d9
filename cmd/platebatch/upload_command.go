package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"platebatch/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var destination string

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Publish files with the configured upload driver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			uploader, err := upload.Open(cmd.Context(), cfg.Upload, upload.WithLogger(logger))
			if err != nil {
				return err
			}
			dest := cfg.Upload.Destination
			if cmd.Flags().Changed("destination") {
				dest = strings.Trim(strings.TrimSpace(destination), "/")
			}
			out := cmd.OutOrStdout()
			for _, path := range args {
				remote, err := uploader.Upload(cmd.Context(), path, dest)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s -> %s\n", path, remote)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&destination, "destination", "d", "", "Override upload.destination")
	return cmd
}

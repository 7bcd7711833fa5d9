package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"platebatch/internal/compose"
	"platebatch/internal/config"
	"platebatch/internal/jobs"
	"platebatch/internal/ledger"
	"platebatch/internal/services/prusaslicer"
	"platebatch/internal/upload"
)

type composeFlags struct {
	sheet      bool
	maxObjects int
	naming     string
	baseName   string
	slice      bool
	noUpload   bool
	plan       bool
	jsonOutput bool
}

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var flags composeFlags

	cmd := &cobra.Command{
		Use:   "compose [batch-list]",
		Short: "Compose a batch list into multi-object packages",
		Long: `Compose reads an ordered batch list (JSON, YAML, or CSV file, or an http(s)
URL returning a sheet export) and writes one package per group of at most
batch.max_objects records. Record k of each group fills template object k.

Use --sheet to read the list from sheet.url in the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source, err := composeSource(cfg, args, flags.sheet)
			if err != nil {
				return err
			}
			records, err := loadRecords(cmd.Context(), cfg, source)
			if err != nil {
				return err
			}

			opts := compose.OptionsFromConfig(cfg)
			opts.Source = source
			if flags.maxObjects > 0 {
				opts.MaxObjects = flags.maxObjects
			}
			if flags.naming != "" {
				opts.Naming = strings.ToLower(strings.TrimSpace(flags.naming))
				if opts.Naming != config.NamingIndex && opts.Naming != config.NamingRange {
					return fmt.Errorf("--naming must be %q or %q", config.NamingIndex, config.NamingRange)
				}
			}
			if flags.baseName != "" {
				opts.BaseName = flags.baseName
			}

			if flags.plan {
				return printPlan(cmd, records, opts)
			}
			return runCompose(cmd, ctx, cfg, opts, records, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.sheet, "sheet", false, "Read the batch list from sheet.url")
	cmd.Flags().IntVar(&flags.maxObjects, "max-objects", 0, "Override batch.max_objects")
	cmd.Flags().StringVar(&flags.naming, "naming", "", "Override batch.naming (index or range)")
	cmd.Flags().StringVar(&flags.baseName, "base-name", "", "Override batch.base_name")
	cmd.Flags().BoolVar(&flags.slice, "slice", false, "Slice every package even if slicer.enabled is false")
	cmd.Flags().BoolVar(&flags.noUpload, "no-upload", false, "Skip uploading even if upload.enabled is true")
	cmd.Flags().BoolVar(&flags.plan, "plan", false, "Print the batch and slot assignment without writing packages")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func composeSource(cfg *config.Config, args []string, useSheet bool) (string, error) {
	switch {
	case len(args) == 1 && useSheet:
		return "", errors.New("pass either a batch list or --sheet, not both")
	case len(args) == 1:
		return strings.TrimSpace(args[0]), nil
	case useSheet:
		if cfg.Sheet.URL == "" {
			return "", errors.New("--sheet requires sheet.url (or PLATEBATCH_SHEET_URL)")
		}
		return cfg.Sheet.URL, nil
	default:
		return "", errors.New("a batch list file or URL is required (or use --sheet)")
	}
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func loadRecords(ctx context.Context, cfg *config.Config, source string) ([]jobs.Record, error) {
	if isRemote(source) {
		client := &http.Client{Timeout: cfg.SheetTimeout()}
		return jobs.Fetch(ctx, client, source)
	}
	path, err := config.ExpandPath(source)
	if err != nil {
		return nil, fmt.Errorf("resolve batch list path: %w", err)
	}
	return jobs.LoadFile(path)
}

func printPlan(cmd *cobra.Command, records []jobs.Record, opts compose.Options) error {
	batches, err := compose.Partition(records, opts.MaxObjects)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(records))
	for _, batch := range batches {
		for _, item := range batch.Items {
			rows = append(rows, []string{
				strconv.Itoa(batch.Index),
				strconv.Itoa(item.Slot),
				item.Record.SpecimenID,
				item.Record.FillDensity,
				item.Record.FillPattern,
				optionalInt(item.Record.SolidInfillEveryLayers),
				optionalInt(item.Record.Perimeters),
			})
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(tableSpec{
		Title:   fmt.Sprintf("%d records in %d packages", len(records), len(batches)),
		Headers: []string{"Batch", "Slot", "Specimen", "Fill", "Pattern", "Solid every", "Perimeters"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft, alignRight, alignRight},
		Plain:   !isTerminal(out),
	}))
	return nil
}

func runCompose(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, opts compose.Options, records []jobs.Record, flags composeFlags) error {
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()

	options := []compose.Option{
		compose.WithLogger(logger),
		compose.WithRecorder(store),
		compose.WithMetrics(compose.NewMetrics()),
	}
	if cfg.Slicer.Enabled || flags.slice {
		slicer, err := prusaslicer.New(cfg.Slicer.Binary, cfg.SlicerTimeout(),
			prusaslicer.WithLogger(logger),
			prusaslicer.WithPrinterTechnology(cfg.Slicer.PrinterTechnology),
		)
		if err != nil {
			return err
		}
		options = append(options, compose.WithSlicer(slicer))
	}
	if cfg.Upload.Enabled && !flags.noUpload {
		uploader, err := upload.Open(cmd.Context(), cfg.Upload, upload.WithLogger(logger))
		if err != nil {
			return err
		}
		options = append(options, compose.WithUploader(uploader))
	}

	composer, err := compose.New(opts, options...)
	if err != nil {
		return err
	}
	report, err := composer.Run(cmd.Context(), records)
	if err != nil {
		return err
	}

	if flags.jsonOutput {
		return writeJSON(cmd, report)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(tableSpec{
		Headers: []string{"Batch", "Archive", "Objects", "Specimens", "G-code", "Remote"},
		Rows:    outputRows(report.Outputs),
		Aligns:  []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
		Plain:   !isTerminal(out),
	}))
	fmt.Fprintf(out, "Composed %d records into %d packages (run %s)\n", report.Records, len(report.Outputs), report.RunID)
	return nil
}

func outputRows(outputs []compose.Output) [][]string {
	rows := make([][]string, 0, len(outputs))
	for _, o := range outputs {
		gcode := ""
		if o.GCodePath != "" {
			gcode = filepath.Base(o.GCodePath)
		}
		rows = append(rows, []string{
			strconv.Itoa(o.Batch),
			o.ArchivePath,
			strconv.Itoa(len(o.SpecimenIDs)),
			strings.Join(o.SpecimenIDs, ","),
			dash(gcode),
			dash(o.RemoteID),
		})
	}
	return rows
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"platebatch/internal/document"
	"platebatch/internal/mesh"
	"platebatch/internal/metadata"
	"platebatch/internal/pkgarchive"
	"platebatch/internal/services"
)

type inspectedObject struct {
	ID          string `json:"id"`
	Type        string `json:"type,omitempty"`
	HasMesh     bool   `json:"has_mesh"`
	Primitives  int    `json:"primitives"`
	Name        string `json:"name,omitempty"`
	FillDensity string `json:"fill_density,omitempty"`
	FillPattern string `json:"fill_pattern,omitempty"`
	LastIndex   string `json:"last_index,omitempty"`
}

type inspectReport struct {
	Archive string             `json:"archive"`
	Entries []pkgarchive.Entry `json:"entries"`
	Objects []inspectedObject  `json:"objects"`
}

func newInspectCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:         "inspect <archive>",
		Short:       "List the entries and objects of a 3MF package",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := inspectArchive(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			plain := !isTerminal(out)
			entryRows := make([][]string, 0, len(report.Entries))
			for _, e := range report.Entries {
				entryRows = append(entryRows, []string{e.Name, strconv.FormatInt(e.Size, 10)})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				Title:   report.Archive,
				Headers: []string{"Entry", "Bytes"},
				Rows:    entryRows,
				Aligns:  []columnAlignment{alignLeft, alignRight},
				Plain:   plain,
			}))

			objectRows := make([][]string, 0, len(report.Objects))
			for _, o := range report.Objects {
				objectRows = append(objectRows, []string{
					o.ID,
					dash(o.Name),
					yesNo(o.HasMesh),
					strconv.Itoa(o.Primitives),
					dash(o.LastIndex),
					dash(o.FillDensity),
					dash(o.FillPattern),
				})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				Headers: []string{"Object", "Name", "Mesh", "Triangles", "Last id", "Fill", "Pattern"},
				Rows:    objectRows,
				Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				Plain:   plain,
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the inspection as JSON")
	return cmd
}

func inspectArchive(path string) (inspectReport, error) {
	entries, err := pkgarchive.Entries(path)
	if err != nil {
		return inspectReport{}, err
	}
	report := inspectReport{Archive: path, Entries: entries}

	raw, err := pkgarchive.ReadFile(path, document.GeometryEntry)
	if err != nil {
		return inspectReport{}, err
	}
	geometry, err := document.Decode(raw, document.GeometryEntry)
	if err != nil {
		return inspectReport{}, err
	}

	var metaDoc string
	if raw, err := pkgarchive.ReadFile(path, document.MetadataEntry); err == nil {
		meta, err := document.Decode(raw, document.MetadataEntry)
		if err != nil {
			return inspectReport{}, err
		}
		metaDoc = meta.Body
	} else if !errors.Is(err, services.ErrMissingSource) {
		return inspectReport{}, err
	}

	for _, info := range mesh.Objects(geometry.Body) {
		obj := inspectedObject{ID: info.ID, Type: info.Type, HasMesh: info.HasMesh, Primitives: info.Primitives}
		if id, err := strconv.Atoi(info.ID); err == nil && metaDoc != "" {
			if span, err := metadata.FindObject(metaDoc, id); err == nil {
				entry := span.Text(metaDoc)
				obj.Name, _ = metadata.Lookup(entry, "name")
				obj.FillDensity, _ = metadata.Lookup(entry, metadata.KeyFillDensity)
				obj.FillPattern, _ = metadata.Lookup(entry, metadata.KeyFillPattern)
				if last, ok := metadata.LastIndex(entry); ok {
					obj.LastIndex = strconv.Itoa(last)
				}
			}
		}
		report.Objects = append(report.Objects, obj)
	}
	return report, nil
}

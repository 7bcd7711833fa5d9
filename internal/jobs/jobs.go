package jobs

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"platebatch/internal/services"
)

// Field names shared by every batch-list format.
const (
	FieldSpecimenID             = "specimen_id"
	FieldFillDensity            = "fill_density"
	FieldFillPattern            = "fill_pattern"
	FieldSolidInfillEveryLayers = "solid_infill_every_layers"
	FieldPerimeters             = "perimeters"
)

// Format identifies a batch-list encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// Record is one batch item before slot assignment.
type Record struct {
	SpecimenID  string `json:"specimen_id" yaml:"specimen_id"`
	FillDensity string `json:"fill_density" yaml:"fill_density"`
	FillPattern string `json:"fill_pattern" yaml:"fill_pattern"`
	// Optional parameters; nil leaves the slot's existing value alone.
	SolidInfillEveryLayers *int `json:"solid_infill_every_layers,omitempty" yaml:"solid_infill_every_layers,omitempty"`
	Perimeters             *int `json:"perimeters,omitempty" yaml:"perimeters,omitempty"`
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", services.Wrap(services.ErrInvalidBatchSpec, "jobs", "detect format", fmt.Sprintf("unsupported batch list extension %q", filepath.Ext(path)), nil)
	}
}

// LoadFile reads and parses a local batch list.
func LoadFile(path string) ([]Record, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrMissingSource, "jobs", "load", path, err)
		}
		return nil, fmt.Errorf("read batch list: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes data as format. Every record is validated; the first invalid
// record fails the whole list.
func Parse(data []byte, format Format) ([]Record, error) {
	var rows []map[string]any
	var err error
	switch format {
	case FormatJSON:
		rows, err = decodeJSON(data)
	case FormatYAML:
		rows, err = decodeYAML(data)
	case FormatCSV:
		rows, err = decodeCSV(data)
	default:
		return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "parse", fmt.Sprintf("unknown format %q", format), nil)
	}
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "parse", fmt.Sprintf("record %d", i+1), err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "parse", "batch list is empty", nil)
	}
	return records, nil
}

func decodeJSON(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "decode json", "", err)
	}
	return rows, nil
}

func decodeYAML(data []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "decode yaml", "", err)
	}
	return rows, nil
}

func decodeCSV(data []byte) ([]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "decode csv", "header", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	var rows []map[string]any
	for line := 2; ; line++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "decode csv", fmt.Sprintf("line %d", line), err)
		}
		if blankRow(fields) {
			continue
		}
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(fields) {
				row[name] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func recordFromRow(row map[string]any) (Record, error) {
	var rec Record
	var err error
	if rec.SpecimenID, err = requiredString(row, FieldSpecimenID); err != nil {
		return Record{}, err
	}
	if rec.FillDensity, err = requiredString(row, FieldFillDensity); err != nil {
		return Record{}, err
	}
	if rec.FillPattern, err = requiredString(row, FieldFillPattern); err != nil {
		return Record{}, err
	}
	if rec.SolidInfillEveryLayers, err = optionalInt(row, FieldSolidInfillEveryLayers); err != nil {
		return Record{}, err
	}
	if rec.Perimeters, err = optionalInt(row, FieldPerimeters); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func requiredString(row map[string]any, key string) (string, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing %s", key)
	}
	s, err := scalarString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	if s == "" {
		return "", fmt.Errorf("missing %s", key)
	}
	return s, nil
}

func optionalInt(row map[string]any, key string) (*int, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, err := scalarString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, fmt.Errorf("%s: %q is not an integer", key, s)
	}
	if f < 0 {
		return nil, fmt.Errorf("%s: must be >= 0, got %s", key, s)
	}
	n := int(f)
	return &n, nil
}

func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case json.Number:
		return val.String(), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}
}

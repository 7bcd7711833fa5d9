package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// Composition failures. Each names a structural precondition of the
	// template or specimen packages and is fatal to the batch being built.
	ErrMissingSource       = errors.New("missing source")
	ErrCorruptArchive      = errors.New("corrupt archive")
	ErrMeshNotFound        = errors.New("mesh not found")
	ErrObjectNotFound      = errors.New("object not found")
	ErrVolumeRecordMissing = errors.New("volume record missing")
	ErrInvalidBatchSpec    = errors.New("invalid batch spec")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var kinds = []struct {
	marker error
	kind   string
}{
	{ErrMissingSource, "missing_source"},
	{ErrCorruptArchive, "corrupt_archive"},
	{ErrMeshNotFound, "mesh_not_found"},
	{ErrObjectNotFound, "object_not_found"},
	{ErrVolumeRecordMissing, "volume_record_missing"},
	{ErrInvalidBatchSpec, "invalid_batch_spec"},
	{ErrExternalTool, "external_tool"},
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrTimeout, "timeout"},
	{ErrTransient, "transient"},
}

// Kind returns a short, stable classification for err suitable for metric
// labels and the run ledger. Unclassified errors report "unknown".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.kind
		}
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

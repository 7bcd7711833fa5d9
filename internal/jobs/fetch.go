package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"platebatch/internal/services"
)

// maxSheetBytes bounds the size of a remote batch list.
const maxSheetBytes = 8 << 20

// Fetch downloads a batch list from a spreadsheet export. The body is either
// a JSON array, CSV with a header row, or CSV holding a single cell whose
// text is a JSON array.
func Fetch(ctx context.Context, client *http.Client, url string) ([]Record, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "fetch", "invalid sheet url", err)
	}
	req.Header.Set("Accept", "text/csv, application/json;q=0.9, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		marker := services.ErrConfiguration
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "jobs", "fetch", fmt.Sprintf("%s returned status %d", url, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSheetBytes+1))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobs", "fetch", "read body", err)
	}
	if len(body) > maxSheetBytes {
		return nil, services.Wrap(services.ErrInvalidBatchSpec, "jobs", "fetch", "batch list exceeds 8 MiB", nil)
	}
	return ParseSheet(body)
}

// ParseSheet decodes a spreadsheet export body.
func ParseSheet(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if bytes.HasPrefix(trimmed, []byte("[")) {
		return Parse(trimmed, FormatJSON)
	}
	if cell, ok := singleCell(trimmed); ok {
		return Parse([]byte(cell), FormatJSON)
	}
	return Parse(trimmed, FormatCSV)
}

// singleCell reports whether body is CSV with exactly one non-empty cell
// holding a JSON array, returning that cell.
func singleCell(body []byte) (string, bool) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return "", false
	}
	var cell string
	found := 0
	for _, row := range rows {
		for _, f := range row {
			if f = strings.TrimSpace(f); f != "" {
				cell = f
				found++
			}
		}
	}
	if found != 1 || len(cell) == 0 || cell[0] != '[' {
		return "", false
	}
	return cell, true
}

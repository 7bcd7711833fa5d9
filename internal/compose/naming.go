package compose

import (
	"fmt"
	"strings"
	"time"

	"platebatch/internal/config"
	"platebatch/internal/specimen"
	"platebatch/internal/textutil"
)

const rangeTimestampLayout = "20060102T150405Z"

// Namer assigns output archive names that are unique within a run.
type Namer struct {
	mode    string
	base    string
	idWidth int
	used    map[string]struct{}
}

// NewNamer returns a Namer for the given mode and base name. The base name is
// sanitized; an empty result falls back to "batch".
func NewNamer(mode, base string, idWidth int) *Namer {
	base = textutil.SanitizeFileName(base)
	if base == "" {
		base = "batch"
	}
	return &Namer{mode: mode, base: base, idWidth: idWidth, used: make(map[string]struct{})}
}

// Name returns the archive file name for batch. Index mode yields
// <base>_<k>.3mf; range mode yields <base>_<first>-<last>_<UTC timestamp>.3mf.
func (n *Namer) Name(batch Batch, now time.Time) string {
	var name string
	switch n.mode {
	case config.NamingRange:
		ids := batch.SpecimenIDs()
		first, last := "", ""
		if len(ids) > 0 {
			first = textutil.SanitizeFileName(specimen.PadID(ids[0], n.idWidth))
			last = textutil.SanitizeFileName(specimen.PadID(ids[len(ids)-1], n.idWidth))
		}
		name = fmt.Sprintf("%s_%s-%s_%s%s", n.base, first, last, now.UTC().Format(rangeTimestampLayout), specimen.Extension)
	default:
		name = fmt.Sprintf("%s_%d%s", n.base, batch.Index, specimen.Extension)
	}
	return n.unique(name)
}

func (n *Namer) unique(name string) string {
	if _, ok := n.used[name]; !ok {
		n.used[name] = struct{}{}
		return name
	}
	stem := strings.TrimSuffix(name, specimen.Extension)
	for i := 1; ; i++ {
		alt := fmt.Sprintf("%s-%d%s", stem, i, specimen.Extension)
		if _, ok := n.used[alt]; !ok {
			n.used[alt] = struct{}{}
			return alt
		}
	}
}

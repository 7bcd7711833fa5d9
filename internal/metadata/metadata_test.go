package metadata_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"platebatch/internal/metadata"
	"platebatch/internal/services"
)

func entry(id int, lastID int, fields ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, " <object id=\"%d\" instances_count=\"1\">\n", id)
	fmt.Fprintf(&b, "  <metadata type=\"object\" key=\"name\" value=\"Dogbone%d\"/>\n", id)
	for _, f := range fields {
		b.WriteString("  " + f + "\n")
	}
	fmt.Fprintf(&b, "  <volume firstid=\"0\" lastid=\"%d\">\n", lastID)
	b.WriteString("   <metadata type=\"volume\" key=\"name\" value=\"Body\"/>\n")
	b.WriteString("   <metadata type=\"volume\" key=\"fill_density\" value=\"99%\"/>\n")
	b.WriteString("   <mesh edges_fixed=\"0\" degenerate_facets=\"0\" facets_removed=\"0\" facets_reversed=\"0\" backwards_edges=\"0\"/>\n")
	b.WriteString("  </volume>\n </object>")
	return b.String()
}

func config(entries ...string) string {
	return "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<config>\n" + strings.Join(entries, "\n") + "\n</config>\n"
}

func TestSetParameterOverwritesExisting(t *testing.T) {
	in := entry(1, 11, `<metadata type="object" key="fill_density" value="15%"/>`)
	out := metadata.SetParameter(in, metadata.KeyFillDensity, "40%")
	want := entry(1, 11, `<metadata type="object" key="fill_density" value="40%"/>`)
	if out != want {
		t.Fatalf("unexpected entry:\n%s\nwant:\n%s", out, want)
	}
}

func TestSetParameterInsertsBeforeVolume(t *testing.T) {
	in := entry(1, 11)
	out := metadata.SetParameter(in, metadata.KeyFillPattern, "gyroid")
	want := entry(1, 11, `<metadata type="object" key="fill_pattern" value="gyroid"/>`)
	if out != want {
		t.Fatalf("unexpected entry:\n%s\nwant:\n%s", out, want)
	}
}

func TestSetParameterIgnoresVolumeFields(t *testing.T) {
	in := entry(1, 11)
	out := metadata.SetParameter(in, metadata.KeyFillDensity, "20%")
	if !strings.Contains(out, `<metadata type="volume" key="fill_density" value="99%"/>`) {
		t.Fatal("volume-level field must not be modified")
	}
	if got, ok := metadata.Lookup(out, metadata.KeyFillDensity); !ok || got != "20%" {
		t.Fatalf("Lookup = %q, %v", got, ok)
	}
}

func TestSetParameterIdempotent(t *testing.T) {
	in := entry(3, 5)
	once := metadata.SetParameter(in, metadata.KeyPerimeters, "4")
	twice := metadata.SetParameter(once, metadata.KeyPerimeters, "4")
	if once != twice {
		t.Fatalf("expected idempotent patch:\n%s\nvs\n%s", once, twice)
	}
}

func TestSetParameterSingleQuotedApostrophe(t *testing.T) {
	in := entry(2, 7, `<metadata type='object' key='fill_pattern' value='x'/>`)
	once := metadata.SetParameter(in, metadata.KeyFillPattern, "it's")
	twice := metadata.SetParameter(once, metadata.KeyFillPattern, "it's")
	if once != twice {
		t.Fatalf("expected idempotent patch:\n%s\nvs\n%s", once, twice)
	}
	if strings.Count(once, `key='fill_pattern'`)+strings.Count(once, `key="fill_pattern"`) != 1 {
		t.Fatalf("expected a single fill_pattern field:\n%s", once)
	}
	if !strings.Contains(once, `value='it&apos;s'`) {
		t.Fatalf("expected escaped apostrophe:\n%s", once)
	}
	if got, ok := metadata.Lookup(once, metadata.KeyFillPattern); !ok || got != "it's" {
		t.Fatalf("Lookup = %q, %v; want it's", got, ok)
	}
}

func TestSetParameterWithoutVolume(t *testing.T) {
	in := " <object id=\"1\">\n  <metadata type=\"object\" key=\"name\" value=\"x\"/>\n </object>"
	out := metadata.SetParameter(in, "perimeters", "2")
	want := " <object id=\"1\">\n  <metadata type=\"object\" key=\"name\" value=\"x\"/>\n  <metadata type=\"object\" key=\"perimeters\" value=\"2\"/>\n </object>"
	if out != want {
		t.Fatalf("unexpected entry:\n%q\nwant:\n%q", out, want)
	}
	single := metadata.SetParameter(`<object id="1"></object>`, "perimeters", "2")
	if single != `<object id="1"><metadata type="object" key="perimeters" value="2"/></object>` {
		t.Fatalf("unexpected single-line entry %q", single)
	}
}

func TestSetLastIndex(t *testing.T) {
	out, err := metadata.SetLastIndex(entry(1, 11), 41)
	if err != nil {
		t.Fatalf("SetLastIndex returned error: %v", err)
	}
	if out != entry(1, 41) {
		t.Fatalf("unexpected entry:\n%s", out)
	}
	if got, ok := metadata.LastIndex(out); !ok || got != 41 {
		t.Fatalf("LastIndex = %d, %v", got, ok)
	}
}

func TestSetLastIndexMissingVolume(t *testing.T) {
	_, err := metadata.SetLastIndex(`<object id="1"><metadata type="object" key="name" value="x"/></object>`, 3)
	if !errors.Is(err, services.ErrVolumeRecordMissing) {
		t.Fatalf("expected ErrVolumeRecordMissing, got %v", err)
	}
}

func TestPatchBatch(t *testing.T) {
	doc := config(entry(1, 0), entry(2, 0), entry(3, 0))
	slots := []metadata.Slot{
		{ID: 1, Params: []metadata.Param{{Key: metadata.KeyFillDensity, Value: "10%"}, {Key: metadata.KeyFillPattern, Value: "grid"}}},
		{ID: 2, Params: []metadata.Param{{Key: metadata.KeyFillDensity, Value: "30%"}, {Key: metadata.KeyFillPattern, Value: "gyroid"}, {Key: metadata.KeyPerimeters, Value: "3"}}},
	}
	out, err := metadata.PatchBatch(doc, slots, map[int]int{1: 12, 2: 7})
	if err != nil {
		t.Fatalf("PatchBatch returned error: %v", err)
	}

	wantLast := map[int]int{1: 11, 2: 6, 3: 0}
	for id, want := range wantLast {
		span, err := metadata.FindObject(out, id)
		if err != nil {
			t.Fatalf("FindObject(%d): %v", id, err)
		}
		entry := span.Text(out)
		if got, _ := metadata.LastIndex(entry); got != want {
			t.Fatalf("object %d lastid = %d, want %d", id, got, want)
		}
	}
	span, _ := metadata.FindObject(out, 2)
	if v, _ := metadata.Lookup(span.Text(out), metadata.KeyPerimeters); v != "3" {
		t.Fatalf("expected perimeters on slot 2, got %q", v)
	}
	span, _ = metadata.FindObject(out, 3)
	if _, ok := metadata.Lookup(span.Text(out), metadata.KeyFillDensity); ok {
		t.Fatal("unpatched slot must not gain parameters")
	}
}

func TestPatchBatchMissingObject(t *testing.T) {
	doc := config(entry(1, 0))
	_, err := metadata.PatchBatch(doc, []metadata.Slot{{ID: 1}, {ID: 2}}, map[int]int{1: 1, 2: 1})
	if !errors.Is(err, services.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "id 2") {
		t.Fatalf("expected id in error, got %q", err.Error())
	}
}

func TestPatchBatchMissingCount(t *testing.T) {
	_, err := metadata.PatchBatch(config(entry(1, 0)), []metadata.Slot{{ID: 1}}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestFillDensity(t *testing.T) {
	cases := map[string]string{"20": "20%", "12.5": "12.5%", "35%": "35%", " 40 ": "40%", "": "", "auto": "auto"}
	for in, want := range cases {
		if got := metadata.FillDensity(in); got != want {
			t.Fatalf("FillDensity(%q) = %q, want %q", in, got, want)
		}
	}
}

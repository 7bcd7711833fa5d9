package testsupport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Package entry names used by the synthetic fixtures.
const (
	ContentTypesEntry = "[Content_Types].xml"
	GeometryEntry     = "3D/3dmodel.model"
	MetadataEntry     = "Metadata/Slic3r_PE_model.config"
	PrintConfigEntry  = "Metadata/Slic3r_PE.config"
)

const contentTypes = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
 <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
 <Default Extension="model" ContentType="application/vnd.ms-package.3dmanufacturing-3dmodel+xml"/>
</Types>
`

// MeshBlock builds a mesh element with the given number of triangles. tag is
// written as the first vertex's x coordinate so tests can tell meshes apart.
func MeshBlock(tag string, triangles int) string {
	var b strings.Builder
	b.WriteString("<mesh>\n")
	b.WriteString("    <vertices>\n")
	fmt.Fprintf(&b, "     <vertex x=\"%s\" y=\"0\" z=\"0\"/>\n", tag)
	b.WriteString("     <vertex x=\"1\" y=\"0\" z=\"0\"/>\n")
	b.WriteString("     <vertex x=\"0\" y=\"1\" z=\"0\"/>\n")
	b.WriteString("    </vertices>\n")
	b.WriteString("    <triangles>\n")
	for i := 0; i < triangles; i++ {
		b.WriteString("     <triangle v1=\"0\" v2=\"1\" v3=\"2\"/>\n")
	}
	b.WriteString("    </triangles>\n")
	b.WriteString("   </mesh>")
	return b.String()
}

// GeometryDocument builds a model document with one object per mesh, ids
// starting at 1.
func GeometryDocument(meshes ...string) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<model unit=\"millimeter\" xml:lang=\"en-US\" xmlns=\"http://schemas.microsoft.com/3dmanufacturing/core/2015/02\">\n")
	b.WriteString(" <resources>\n")
	for i, m := range meshes {
		fmt.Fprintf(&b, "  <object id=\"%d\" type=\"model\">\n   %s\n  </object>\n", i+1, m)
	}
	b.WriteString(" </resources>\n")
	b.WriteString(" <build>\n")
	for i := range meshes {
		fmt.Fprintf(&b, "  <item objectid=\"%d\" printable=\"1\"/>\n", i+1)
	}
	b.WriteString(" </build>\n")
	b.WriteString("</model>\n")
	return b.String()
}

// MetadataDocument builds a slicer model config with entries for object ids
// 1..objects. Each entry carries a name, a default fill density and a volume
// record whose lastid is 0.
func MetadataDocument(objects int) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	b.WriteString("<config>\n")
	for id := 1; id <= objects; id++ {
		fmt.Fprintf(&b, " <object id=\"%d\" instances_count=\"1\">\n", id)
		fmt.Fprintf(&b, "  <metadata type=\"object\" key=\"name\" value=\"Dogbone%d\"/>\n", id)
		b.WriteString("  <metadata type=\"object\" key=\"fill_density\" value=\"15%\"/>\n")
		b.WriteString("  <volume firstid=\"0\" lastid=\"0\">\n")
		b.WriteString("   <metadata type=\"volume\" key=\"name\" value=\"Dogbone\"/>\n")
		b.WriteString("   <mesh edges_fixed=\"0\" degenerate_facets=\"0\" facets_removed=\"0\" facets_reversed=\"0\" backwards_edges=\"0\"/>\n")
		b.WriteString("  </volume>\n")
		b.WriteString(" </object>\n")
	}
	b.WriteString("</config>\n")
	return b.String()
}

// WritePackage writes files into a new zip archive at path in lexical order.
func WritePackage(t testing.TB, path string, files map[string]string) {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteTemplate writes a template package with slots placeholder objects,
// each holding a one-triangle mesh tagged "template".
func WriteTemplate(t testing.TB, path string, slots int) {
	t.Helper()

	meshes := make([]string, slots)
	for i := range meshes {
		meshes[i] = MeshBlock("template", 1)
	}
	WritePackage(t, path, map[string]string{
		ContentTypesEntry: contentTypes,
		GeometryEntry:     GeometryDocument(meshes...),
		MetadataEntry:     MetadataDocument(slots),
		PrintConfigEntry:  "; generated by PrusaSlicer\nlayer_height = 0.2\n",
	})
}

// WriteSpecimen writes a single-object specimen package named
// <paddedID>.3mf under dir. Its mesh is tagged with paddedID and carries
// the given number of triangles.
func WriteSpecimen(t testing.TB, dir, paddedID string, triangles int) string {
	t.Helper()

	path := filepath.Join(dir, paddedID+".3mf")
	WritePackage(t, path, map[string]string{
		ContentTypesEntry: contentTypes,
		GeometryEntry:     GeometryDocument(MeshBlock(paddedID, triangles)),
		MetadataEntry:     MetadataDocument(1),
	})
	return path
}

// ReadEntry returns the contents of one archive member.
func ReadEntry(t testing.TB, archivePath, name string) string {
	t.Helper()

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open %s: %v", archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read entry %s: %v", name, err)
		}
		return string(data)
	}
	t.Fatalf("%s has no entry %s", archivePath, name)
	return ""
}

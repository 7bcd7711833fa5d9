package mesh

import (
	"fmt"
	"strconv"
	"strings"

	"platebatch/internal/services"
	"platebatch/internal/xmltext"
)

const (
	objectElement    = "object"
	meshElement      = "mesh"
	primitiveElement = "triangle"
)

// ObjectSpan locates one object entry and its mesh block inside a document.
type ObjectSpan struct {
	ID    int
	Entry xmltext.Span
	Mesh  xmltext.Span
}

// ObjectInfo summarizes an object entry for inspection.
type ObjectInfo struct {
	ID         string
	Type       string
	HasMesh    bool
	Primitives int
}

// ExtractMesh returns the first mesh block in doc.
func ExtractMesh(doc string) (string, error) {
	block, ok := xmltext.Block(doc, meshElement, 0, -1)
	if !ok {
		return "", services.Wrap(services.ErrMeshNotFound, "mesh", "extract", "document has no <mesh> block", nil)
	}
	return block.Text(doc), nil
}

// CountPrimitives counts triangle start tags in doc. The enclosing
// <triangles> list element is not counted.
func CountPrimitives(doc string) int {
	count := 0
	pos := 0
	for {
		tag, ok := xmltext.NextStartTag(doc, primitiveElement, pos, -1)
		if !ok {
			return count
		}
		count++
		pos = tag.End
	}
}

// LastIndex converts a primitive count into the zero-based index of the final
// primitive, the form the slicer metadata stores on a volume record.
func LastIndex(count int) int {
	return count - 1
}

// FindObject locates the first object entry whose id attribute equals id and
// the mesh block lying entirely inside it.
func FindObject(doc string, id int) (ObjectSpan, error) {
	want := strconv.Itoa(id)
	el, ok := xmltext.FindElement(doc, objectElement, "id", want)
	if !ok {
		return ObjectSpan{}, services.Wrap(services.ErrObjectNotFound, "mesh", "find object", fmt.Sprintf("no object entry with id %d", id), nil)
	}
	inner := el.Inner()
	block, ok := xmltext.Block(doc, meshElement, inner.Start, inner.End)
	if !ok {
		return ObjectSpan{}, services.Wrap(services.ErrObjectNotFound, "mesh", "find object", fmt.Sprintf("object id %d has no <mesh> block", id), nil)
	}
	return ObjectSpan{ID: id, Entry: el.Span, Mesh: block.Span}, nil
}

// SpliceMesh copies the first mesh block of sourceDoc into the object entry of
// targetDoc identified by objectID. Only that entry's span changes.
func SpliceMesh(sourceDoc, targetDoc string, objectID int) (string, error) {
	sourceMesh, err := ExtractMesh(sourceDoc)
	if err != nil {
		return "", err
	}
	return replaceMesh(targetDoc, objectID, sourceMesh)
}

func replaceMesh(targetDoc string, objectID int, block string) (string, error) {
	obj, err := FindObject(targetDoc, objectID)
	if err != nil {
		return "", err
	}
	var entry strings.Builder
	entry.Grow(obj.Entry.Len() - obj.Mesh.Len() + len(block))
	entry.WriteString(targetDoc[obj.Entry.Start:obj.Mesh.Start])
	entry.WriteString(block)
	entry.WriteString(targetDoc[obj.Mesh.End:obj.Entry.End])
	return xmltext.Replace(targetDoc, obj.Entry, entry.String()), nil
}

// SpliceSlots places blocks[i] into object slot i+1 of targetDoc, slot 1
// first. Each block must already be an extracted mesh block.
func SpliceSlots(targetDoc string, blocks []string) (string, error) {
	doc := targetDoc
	for i, block := range blocks {
		slot := i + 1
		next, err := replaceMesh(doc, slot, block)
		if err != nil {
			return "", fmt.Errorf("slot %d: %w", slot, err)
		}
		doc = next
	}
	return doc, nil
}

// Objects lists every object entry in doc with its mesh primitive count.
func Objects(doc string) []ObjectInfo {
	elements := xmltext.Elements(doc, objectElement)
	out := make([]ObjectInfo, 0, len(elements))
	for _, el := range elements {
		info := ObjectInfo{}
		info.ID, _ = xmltext.Attr(el.Open.Raw, "id")
		info.Type, _ = xmltext.Attr(el.Open.Raw, "type")
		inner := el.Inner()
		if block, ok := xmltext.Block(doc, meshElement, inner.Start, inner.End); ok {
			info.HasMesh = true
			info.Primitives = CountPrimitives(block.Text(doc))
		}
		out = append(out, info)
	}
	return out
}

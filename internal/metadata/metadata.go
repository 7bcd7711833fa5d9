package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"platebatch/internal/mesh"
	"platebatch/internal/services"
	"platebatch/internal/xmltext"
)

// Parameter keys written for every composed slot.
const (
	KeyFillDensity            = "fill_density"
	KeyFillPattern            = "fill_pattern"
	KeySolidInfillEveryLayers = "solid_infill_every_layers"
	KeyPerimeters             = "perimeters"
)

const (
	objectElement = "object"
	fieldElement  = "metadata"
	volumeElement = "volume"
	fieldType     = "object"
	lastIndexAttr = "lastid"
)

// Param is a single key/value parameter field.
type Param struct {
	Key   string
	Value string
}

// Slot carries the parameters to apply to one object entry.
type Slot struct {
	ID     int
	Params []Param
}

// FindObject locates the metadata entry for object id.
func FindObject(doc string, id int) (xmltext.Span, error) {
	el, ok := xmltext.FindElement(doc, objectElement, "id", strconv.Itoa(id))
	if !ok || el.Open.SelfClosing {
		return xmltext.Span{}, services.Wrap(services.ErrObjectNotFound, "metadata", "find object", fmt.Sprintf("no metadata entry with id %d", id), nil)
	}
	return el.Span, nil
}

// field returns the object-level parameter tag with the given key.
func field(entry, key string) (xmltext.Tag, bool) {
	bodyStart, bodyEnd := body(entry)
	pos := bodyStart
	for {
		tag, ok := xmltext.NextStartTag(entry, fieldElement, pos, bodyEnd)
		if !ok {
			return xmltext.Tag{}, false
		}
		pos = tag.End
		if typ, _ := xmltext.Attr(tag.Raw, "type"); typ != fieldType {
			continue
		}
		if k, _ := xmltext.Attr(tag.Raw, "key"); k == key {
			return tag, true
		}
	}
}

// body returns the offsets of the entry's contents, excluding its own start
// tag and closing tag.
func body(entry string) (int, int) {
	open, ok := xmltext.NextStartTag(entry, objectElement, 0, -1)
	if !ok {
		return 0, len(entry)
	}
	end := strings.LastIndex(entry, "</"+objectElement+">")
	if end < open.End {
		end = len(entry)
	}
	return open.End, end
}

// Lookup returns the value of the object-level parameter key.
func Lookup(entry, key string) (string, bool) {
	tag, ok := field(entry, key)
	if !ok {
		return "", false
	}
	return xmltext.Attr(tag.Raw, "value")
}

// SetParameter overwrites the object-level parameter key, or inserts it ahead
// of the volume record when absent. Applying the same key and value again
// leaves entry unchanged.
func SetParameter(entry, key, value string) string {
	if tag, ok := field(entry, key); ok {
		return xmltext.Replace(entry, tag.Span, xmltext.SetAttr(tag.Raw, "value", value))
	}
	newField := fmt.Sprintf(`<%s type="%s" key="%s" value="%s"/>`,
		fieldElement, fieldType, xmltext.EscapeAttr(key), xmltext.EscapeAttr(value))

	bodyStart, bodyEnd := body(entry)
	at := bodyEnd
	vol, hasVolume := xmltext.NextStartTag(entry, volumeElement, bodyStart, bodyEnd)
	if hasVolume {
		at = vol.Start
	}
	indent, ok := xmltext.LineIndent(entry, at)
	switch {
	case !ok:
		return entry[:at] + newField + entry[at:]
	case hasVolume:
		return entry[:at] + newField + "\n" + indent + entry[at:]
	default:
		// Closing tag on its own line: add a child line one level deeper.
		lineStart := at - len(indent)
		return entry[:lineStart] + indent + " " + newField + "\n" + entry[lineStart:]
	}
}

// LastIndex reads the lastid attribute of the entry's volume record.
func LastIndex(entry string) (int, bool) {
	bodyStart, bodyEnd := body(entry)
	vol, ok := xmltext.NextStartTag(entry, volumeElement, bodyStart, bodyEnd)
	if !ok {
		return 0, false
	}
	raw, ok := xmltext.Attr(vol.Raw, lastIndexAttr)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetLastIndex sets lastid on the entry's volume record.
func SetLastIndex(entry string, value int) (string, error) {
	bodyStart, bodyEnd := body(entry)
	vol, ok := xmltext.NextStartTag(entry, volumeElement, bodyStart, bodyEnd)
	if !ok {
		return "", services.Wrap(services.ErrVolumeRecordMissing, "metadata", "set last index", "object entry has no <volume> record", nil)
	}
	return xmltext.Replace(entry, vol.Span, xmltext.SetAttr(vol.Raw, lastIndexAttr, strconv.Itoa(value))), nil
}

// PatchBatch applies each slot's parameters and its derived last index to the
// metadata document. primitivesBySlot holds the triangle count of the mesh
// placed in each slot; the stored last index is that count minus one.
func PatchBatch(doc string, slots []Slot, primitivesBySlot map[int]int) (string, error) {
	for _, slot := range slots {
		count, ok := primitivesBySlot[slot.ID]
		if !ok {
			return "", services.Wrap(services.ErrValidation, "metadata", "patch batch", fmt.Sprintf("slot %d has no primitive count", slot.ID), nil)
		}
		span, err := FindObject(doc, slot.ID)
		if err != nil {
			return "", fmt.Errorf("slot %d: %w", slot.ID, err)
		}
		entry := span.Text(doc)
		for _, p := range slot.Params {
			entry = SetParameter(entry, p.Key, p.Value)
		}
		entry, err = SetLastIndex(entry, mesh.LastIndex(count))
		if err != nil {
			return "", fmt.Errorf("slot %d: %w", slot.ID, err)
		}
		doc = xmltext.Replace(doc, span, entry)
	}
	return doc, nil
}

// FillDensity normalizes a fill density to the slicer's stored form. Bare
// numbers are percentages ("20" becomes "20%"); other values pass through.
func FillDensity(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasSuffix(value, "%") {
		return value
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value + "%"
	}
	return value
}

package xmltext

import (
	"regexp"
	"strings"
)

// Span is a half-open byte range [Start, End) within a document.
type Span struct {
	Start int
	End   int
}

// Len reports the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Text returns the covered substring of doc.
func (s Span) Text(doc string) string { return doc[s.Start:s.End] }

// Tag is a start tag located in a document.
type Tag struct {
	Span
	Name        string
	Raw         string
	SelfClosing bool
}

// Element is a start tag together with the extent of its content and closing tag.
type Element struct {
	Span
	Open Tag
}

// Inner returns the span between the end of the start tag and the start of
// the closing tag. Self-closing elements have an empty inner span.
func (e Element) Inner() Span {
	if e.Open.SelfClosing {
		return Span{Start: e.Open.End, End: e.Open.End}
	}
	return Span{Start: e.Open.End, End: e.End - len(closeTag(e.Open.Name))}
}

func closeTag(name string) string { return "</" + name + ">" }

func clampEnd(doc string, to int) int {
	if to < 0 || to > len(doc) {
		return len(doc)
	}
	return to
}

// NextStartTag returns the first start tag named name whose bytes lie
// entirely within doc[from:to]. A negative to means the end of doc.
func NextStartTag(doc, name string, from, to int) (Tag, bool) {
	to = clampEnd(doc, to)
	needle := "<" + name
	pos := from
	for pos < to {
		idx := strings.Index(doc[pos:to], needle)
		if idx < 0 {
			return Tag{}, false
		}
		start := pos + idx
		after := start + len(needle)
		if after >= to {
			return Tag{}, false
		}
		if !isTagBoundary(doc[after]) {
			pos = after
			continue
		}
		end, ok := scanTagEnd(doc, after, to)
		if !ok {
			return Tag{}, false
		}
		raw := doc[start:end]
		return Tag{
			Span:        Span{Start: start, End: end},
			Name:        name,
			Raw:         raw,
			SelfClosing: strings.HasSuffix(raw, "/>"),
		}, true
	}
	return Tag{}, false
}

func isTagBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '>', '/':
		return true
	}
	return false
}

// scanTagEnd returns the offset just past the ">" closing a start tag,
// skipping any ">" inside quoted attribute values.
func scanTagEnd(doc string, from, to int) (int, bool) {
	var quote byte
	for i := from; i < to; i++ {
		c := doc[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i + 1, true
		}
	}
	return 0, false
}

// ElementAt completes the element whose start tag is open, searching for the
// closing tag no further than to. It reports false for an unterminated element.
func ElementAt(doc string, open Tag, to int) (Element, bool) {
	if open.SelfClosing {
		return Element{Span: open.Span, Open: open}, true
	}
	to = clampEnd(doc, to)
	closing := closeTag(open.Name)
	idx := strings.Index(doc[open.End:to], closing)
	if idx < 0 {
		return Element{}, false
	}
	end := open.End + idx + len(closing)
	return Element{Span: Span{Start: open.Start, End: end}, Open: open}, true
}

// Elements lists every terminated element named name in document order.
func Elements(doc, name string) []Element {
	var out []Element
	pos := 0
	for {
		open, ok := NextStartTag(doc, name, pos, -1)
		if !ok {
			return out
		}
		el, ok := ElementAt(doc, open, -1)
		if !ok {
			return out
		}
		out = append(out, el)
		pos = el.End
	}
}

// FindElement returns the first element named name whose attribute attr
// equals value. Only the first start tag carrying that value is considered.
func FindElement(doc, name, attr, value string) (Element, bool) {
	pos := 0
	for {
		open, ok := NextStartTag(doc, name, pos, -1)
		if !ok {
			return Element{}, false
		}
		if got, ok := Attr(open.Raw, attr); ok && strings.TrimSpace(got) == value {
			return ElementAt(doc, open, -1)
		}
		pos = open.End
	}
}

// Block returns the first non-self-closing element named name that starts and
// ends within doc[from:to].
func Block(doc, name string, from, to int) (Element, bool) {
	to = clampEnd(doc, to)
	pos := from
	for {
		open, ok := NextStartTag(doc, name, pos, to)
		if !ok {
			return Element{}, false
		}
		if open.SelfClosing {
			pos = open.End
			continue
		}
		return ElementAt(doc, open, to)
	}
}

var attrPattern = regexp.MustCompile(`([A-Za-z_:][-A-Za-z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

var attrUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

// Attr returns the unescaped value of attribute name within a raw start tag.
func Attr(tag, name string) (string, bool) {
	for _, m := range attrPattern.FindAllStringSubmatchIndex(tag, -1) {
		if tag[m[2]:m[3]] != name {
			continue
		}
		if m[4] >= 0 {
			return attrUnescaper.Replace(tag[m[4]:m[5]]), true
		}
		return attrUnescaper.Replace(tag[m[6]:m[7]]), true
	}
	return "", false
}

// SetAttr returns tag with attribute name set to value. An existing value is
// replaced in place, keeping its quoting; a missing attribute is appended
// before the tag terminator. value is escaped for use in an attribute.
func SetAttr(tag, name, value string) string {
	escaped := EscapeAttr(value)
	for _, m := range attrPattern.FindAllStringSubmatchIndex(tag, -1) {
		if tag[m[2]:m[3]] != name {
			continue
		}
		vs, ve := m[4], m[5]
		if vs < 0 {
			vs, ve = m[6], m[7]
		}
		return tag[:vs] + escaped + tag[ve:]
	}
	cut := len(tag) - 1
	if strings.HasSuffix(tag, "/>") {
		cut = len(tag) - 2
	}
	head := strings.TrimRight(tag[:cut], " \t\r\n")
	return head + " " + name + `="` + escaped + `"` + tag[len(head):cut] + tag[cut:]
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeAttr escapes value for a single- or double-quoted attribute.
func EscapeAttr(value string) string {
	return attrEscaper.Replace(value)
}

// LineIndent returns the run of spaces and tabs preceding pos when that run
// starts a line. It reports false when other text precedes pos on its line.
func LineIndent(doc string, pos int) (string, bool) {
	i := pos
	for i > 0 && (doc[i-1] == ' ' || doc[i-1] == '\t') {
		i--
	}
	if i > 0 && doc[i-1] != '\n' {
		return "", false
	}
	return doc[i:pos], true
}

// Replace substitutes span s of doc with text.
func Replace(doc string, s Span, text string) string {
	var b strings.Builder
	b.Grow(len(doc) - s.Len() + len(text))
	b.WriteString(doc[:s.Start])
	b.WriteString(text)
	b.WriteString(doc[s.End:])
	return b.String()
}

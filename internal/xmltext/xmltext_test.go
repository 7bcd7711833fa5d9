package xmltext

import "testing"

func TestNextStartTagSkipsLongerNames(t *testing.T) {
	doc := `<triangles><triangle v1="0" v2="1" v3="2"/></triangles>`
	tag, ok := NextStartTag(doc, "triangle", 0, -1)
	if !ok {
		t.Fatal("expected triangle tag")
	}
	if tag.Raw != `<triangle v1="0" v2="1" v3="2"/>` {
		t.Fatalf("unexpected tag %q", tag.Raw)
	}
	if !tag.SelfClosing {
		t.Fatal("expected self-closing tag")
	}
}

func TestNextStartTagIgnoresGreaterThanInQuotes(t *testing.T) {
	doc := `<metadata key="note" value="a>b"/><next/>`
	tag, ok := NextStartTag(doc, "metadata", 0, -1)
	if !ok {
		t.Fatal("expected metadata tag")
	}
	if tag.End != len(`<metadata key="note" value="a>b"/>`) {
		t.Fatalf("unexpected tag end %d", tag.End)
	}
}

func TestFindElementFirstMatchOnly(t *testing.T) {
	doc := `<object id="1"><a/></object><object id="2"><b/></object><object id="2"><c/></object>`
	el, ok := FindElement(doc, "object", "id", "2")
	if !ok {
		t.Fatal("expected object 2")
	}
	if got := el.Text(doc); got != `<object id="2"><b/></object>` {
		t.Fatalf("unexpected element %q", got)
	}
	if got := el.Inner().Text(doc); got != `<b/>` {
		t.Fatalf("unexpected inner %q", got)
	}
}

func TestFindElementMissing(t *testing.T) {
	doc := `<object id="1"></object><object id="10"></object>`
	if _, ok := FindElement(doc, "object", "id", "0"); ok {
		t.Fatal("expected no match for id 0")
	}
	el, ok := FindElement(doc, "object", "id", "10")
	if !ok || el.Start != len(`<object id="1"></object>`) {
		t.Fatalf("expected exact id match, got %+v ok=%v", el, ok)
	}
}

func TestBlockStaysWithinBounds(t *testing.T) {
	doc := `<object id="1"></object><object id="2"><mesh>m2</mesh></object>`
	first, _ := FindElement(doc, "object", "id", "1")
	if _, ok := Block(doc, "mesh", first.Open.End, first.End); ok {
		t.Fatal("mesh from a later object must not be attributed to object 1")
	}
	second, _ := FindElement(doc, "object", "id", "2")
	mesh, ok := Block(doc, "mesh", second.Open.End, second.End)
	if !ok || mesh.Text(doc) != "<mesh>m2</mesh>" {
		t.Fatalf("unexpected mesh %+v ok=%v", mesh, ok)
	}
}

func TestBlockSkipsSelfClosing(t *testing.T) {
	doc := `<volume><mesh edges_fixed="0"/></volume><mesh>real</mesh>`
	mesh, ok := Block(doc, "mesh", 0, -1)
	if !ok || mesh.Text(doc) != "<mesh>real</mesh>" {
		t.Fatalf("unexpected block %q ok=%v", mesh.Text(doc), ok)
	}
}

func TestAttr(t *testing.T) {
	tag := `<metadata type="object" key='fill_pattern' value="gyroid"/>`
	cases := map[string]string{"type": "object", "key": "fill_pattern", "value": "gyroid"}
	for name, want := range cases {
		got, ok := Attr(tag, name)
		if !ok || got != want {
			t.Fatalf("Attr(%q) = %q, %v; want %q", name, got, ok, want)
		}
	}
	if _, ok := Attr(tag, "missing"); ok {
		t.Fatal("expected missing attribute")
	}
}

func TestAttrUnescapesEntities(t *testing.T) {
	tag := `<metadata key='note' value='it&apos;s &lt;a&gt; &amp;lt;'/>`
	if got, ok := Attr(tag, "value"); !ok || got != "it's <a> &lt;" {
		t.Fatalf("Attr = %q, %v", got, ok)
	}
	if got, _ := Attr(SetAttr(tag, "value", `"q" & 'a'`), "value"); got != `"q" & 'a'` {
		t.Fatalf("round trip = %q", got)
	}
}

func TestSetAttr(t *testing.T) {
	cases := []struct {
		name  string
		tag   string
		attr  string
		value string
		want  string
	}{
		{"replace", `<volume firstid="0" lastid="11">`, "lastid", "3", `<volume firstid="0" lastid="3">`},
		{"append", `<volume firstid="0">`, "lastid", "3", `<volume firstid="0" lastid="3">`},
		{"append self closing", `<metadata key="k" />`, "value", "v", `<metadata key="k" value="v" />`},
		{"single quotes kept", `<metadata value='a'/>`, "value", "b", `<metadata value='b'/>`},
		{"escaped", `<metadata value=""/>`, "value", `a"&b`, `<metadata value="a&quot;&amp;b"/>`},
		{"apostrophe in single quotes", `<metadata value='x'/>`, "value", "it's", `<metadata value='it&apos;s'/>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SetAttr(tc.tag, tc.attr, tc.value); got != tc.want {
				t.Fatalf("SetAttr = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLineIndent(t *testing.T) {
	doc := "<object>\n  <volume/>\n</object>"
	pos := len("<object>\n  ")
	indent, ok := LineIndent(doc, pos)
	if !ok || indent != "  " {
		t.Fatalf("unexpected indent %q ok=%v", indent, ok)
	}
	if _, ok := LineIndent(`<object><volume/>`, len("<object>")); ok {
		t.Fatal("expected no indent when text precedes position")
	}
}

func TestElementsLists(t *testing.T) {
	doc := `<object id="1"/><object id="2"></object>`
	els := Elements(doc, "object")
	if len(els) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(els))
	}
	if !els[0].Open.SelfClosing || els[1].Open.SelfClosing {
		t.Fatalf("unexpected self-closing flags: %+v", els)
	}
}

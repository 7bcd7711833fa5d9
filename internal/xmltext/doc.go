// Package xmltext locates and rewrites known substructures of XML-like text
// without building a document object model.
//
// Geometry and slicer metadata documents are treated as opaque text. Callers
// ask for an element by name and attribute value and receive byte offsets;
// everything outside those offsets is left untouched. The matching rules are
// deliberately narrow:
//
//   - A start tag is "<name" followed by whitespace, "/" or ">"; it ends at the
//     first ">" that is not inside a quoted attribute value.
//   - An element spans from its start tag through the first "</name>" after it
//     (or just the start tag when it is self-closing). Elements of the same
//     name are assumed not to nest.
//   - Lookups return the first match scanning forward; matches never overlap.
package xmltext

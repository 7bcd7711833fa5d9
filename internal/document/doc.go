// Package document reads and writes the two text parts of an extracted 3MF
// package that composition edits: the geometry document and the slicer
// metadata document.
//
// Documents are handled as whole UTF-8 strings. A leading byte-order mark is
// stripped on read and restored on write so untouched regions round-trip
// byte-for-byte.
package document

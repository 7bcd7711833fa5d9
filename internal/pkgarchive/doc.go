// Package pkgarchive opens 3MF package archives into working directories and
// repacks working directories into archives.
//
// Extraction always lands in a fresh directory and rejects entries that would
// escape it. Repacking writes to a temporary file beside the destination and
// renames it into place, so a failed repack never leaves a partial archive at
// the requested path. Entries are written in lexical order with a fixed
// timestamp, making repeated repacks of the same tree byte-identical.
package pkgarchive

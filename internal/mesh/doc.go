// Package mesh relocates mesh blocks between 3MF geometry documents.
//
// A mesh block is the <mesh>...</mesh> element of an object entry. It is
// treated as an opaque unit: extracted from a specimen, counted for
// bookkeeping, and substituted into a template object slot, never parsed.
package mesh

// Package preflight provides readiness checks for the filesystem paths,
// template package, external binaries, and remote sources platebatch depends on.
//
// The CLI "platebatch status" command prints every result as a table and
// exits non-zero when any check fails. Each check is gated by its config
// toggle; disabled features are skipped.
package preflight

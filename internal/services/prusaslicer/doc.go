// Package prusaslicer mediates access to the PrusaSlicer console CLI used to
// export G-code from composed packages.
//
// It normalizes command invocation, enforces a per-archive timeout, captures
// console diagnostics, and exposes an injectable Executor so callers can be
// tested without the slicer installed.
package prusaslicer

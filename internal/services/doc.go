// Package services defines shared utilities consumed by the composer and its
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, batch indexes, stage names and
//     specimen ids for logging.
//   - Structured error markers plus the Wrap helper that keep failures
//     classifiable (missing sources, template/specimen shape mismatches,
//     external tool failures) while naming the failing batch, slot or id.
//   - Thin adapters for external tools (see the prusaslicer subpackage) whose
//     command execution is injectable for tests.
package services

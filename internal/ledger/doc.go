// Package ledger persists composition history in SQLite.
//
// Each invocation of the composer opens a run, records one row per emitted
// batch archive (with its slot assignments and any published copies), and
// closes the run with its final status. The history CLI command
// reads the same tables back for display.
package ledger

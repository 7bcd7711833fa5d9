// Package logging assembles structured slog loggers and formatting helpers used
// across platebatch.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so composer code can tag log
// lines with run ids, batch indexes, stages and specimen ids. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging

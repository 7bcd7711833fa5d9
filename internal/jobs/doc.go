// Package jobs parses the ordered batch list that drives a composition run.
//
// A batch list is a sequence of records, each naming a specimen and the print
// parameters its slot receives. Lists arrive as a JSON array, a YAML
// sequence, or CSV with a header row, either from a local file or from a
// remote spreadsheet export. Record order is significant: it decides slot
// assignment and batch boundaries.
package jobs

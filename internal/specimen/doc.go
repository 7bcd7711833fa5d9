// Package specimen maps specimen ids to their source packages and caches
// extracted specimens for the length of one composition run.
//
// A specimen id resolves to <base>/<id left-padded with zeros>.3mf. A missing
// file is a hard failure. The Cache extracts each distinct id at most once and
// removes every extraction on Release.
package specimen

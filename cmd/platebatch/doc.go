// Package main hosts the platebatch CLI entrypoint and command graph.
//
// The Cobra-based command tree composes batch lists into multi-object 3MF
// packages, inspects packages, slices and uploads outputs by hand, shows run
// history from the ledger, reports preflight status, and scaffolds
// configuration. It centralizes configuration resolution and structured
// logging setup so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main

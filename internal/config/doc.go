// Package config loads, normalizes, and validates platebatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PLATEBATCH_SHEET_URL and AWS_REGION. The Config type centralizes every knob
// the composer and CLI need so specimen, template, and output locations are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical naming modes, and clear validation errors.
package config

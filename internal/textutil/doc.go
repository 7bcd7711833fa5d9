// Package textutil provides filename sanitization for output archive names
// and upload keys.
package textutil

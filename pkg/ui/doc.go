// Package ui holds the user-facing terminal output: colored status lines,
// the per-account snapshot progress bar and the end-of-run summary.
//
// Everything here writes to the writer it is given, so the same code serves
// stdout in the CLI and a buffer in tests. Structured logs go through
// pkg/logger instead.
package ui

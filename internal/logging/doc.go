// Package logging builds slog loggers for voiceline.
//
// Two output formats are supported: a compact console format for
// interactive use and JSON for ingestion. NewFromConfig tees output to
// stdout and a log file under the configured log directory.
package logging

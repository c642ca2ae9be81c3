// Package logging installs the process-wide structured log sink.
//
// Logs are JSON lines written to a size-rotated file under ~/.mcb/logs and,
// when enabled, mirrored to stderr. The MCP stdio server must never write to
// stdout or stderr, so it uses SetupServerMode, which logs to the file only.
package logging

package logging

import "log/slog"

// SetupServerMode installs file-only logging for the stdio MCP server.
// stdout carries JSON-RPC exclusively; WriteToStderr is forced off.
func SetupServerMode(cfg Config) (func(), error) {
	cfg.WriteToStderr = false
	cleanup, err := SetupDefault(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("server_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return cleanup, nil
}

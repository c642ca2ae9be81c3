package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/mcb/internal/config"
)

// LogFileName is the name of the process log.
const LogFileName = "mcb.log"

// DefaultLogDir returns ~/.mcb/logs, or $MCB_HOME/logs.
func DefaultLogDir() string {
	return filepath.Join(config.HomeDir(), "logs")
}

// DefaultLogPath returns the default log file.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), LogFileName)
}

// FindLogFile returns explicit when it exists, else the default log file.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}
	path := DefaultLogPath()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found at %s; run an mcb command first", path)
	}
	return path, nil
}

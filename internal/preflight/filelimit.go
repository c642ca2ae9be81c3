package preflight

import (
	"fmt"
	"path/filepath"
	"syscall"
)

// MinFileDescriptors is the descriptor limit below which watching large
// trees with fsnotify fails.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the soft RLIMIT_NOFILE. A low limit is a
// warning: the polling watcher still works.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to read limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "run 'ulimit -n 10240', or use 'mcb watch --polling'"
		return result
	}
	result.Status = StatusPass
	return result
}

func parentDir(path string) string {
	return filepath.Dir(filepath.Clean(path))
}

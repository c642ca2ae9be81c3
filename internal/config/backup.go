package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the number of user config backups kept.
	MaxBackups = 3

	// BackupSuffix separates the config name from the backup timestamp.
	BackupSuffix = ".bak"
)

// now is replaced in tests.
var now = time.Now

// InitUserConfig writes the default configuration to the user config path.
// An existing file is kept unless force is set, in which case it is backed
// up first. It returns the written path and the backup path, if any.
func InitUserConfig(force bool) (path, backup string, err error) {
	path = GetUserConfigPath()
	if UserConfigExists() {
		if !force {
			return path, "", fmt.Errorf("config already exists at %s", path)
		}
		if backup, err = BackupUserConfig(); err != nil {
			return path, "", err
		}
	}
	if err := NewConfig().WriteYAML(path); err != nil {
		return path, backup, err
	}
	return path, backup, nil
}

// BackupUserConfig copies the user config to a timestamped sibling and
// prunes old copies beyond MaxBackups. Without a user config it returns "".
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Pruning is best effort; the backup itself succeeded.
	_ = pruneBackups()
	return backupPath, nil
}

// ListUserConfigBackups returns the backups, newest first.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	dir := filepath.Dir(configPath)
	prefix := filepath.Base(configPath) + BackupSuffix + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	// Timestamps sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

func pruneBackups() error {
	backups, err := ListUserConfigBackups()
	if err != nil || len(backups) <= MaxBackups {
		return err
	}
	for _, b := range backups[MaxBackups:] {
		_ = os.Remove(b)
	}
	return nil
}

// RestoreUserConfig replaces the user config with backupPath, backing up
// the current file first.
func RestoreUserConfig(backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if _, err := BackupUserConfig(); err != nil {
		return fmt.Errorf("failed to backup current config before restore: %w", err)
	}

	configPath := GetUserConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}

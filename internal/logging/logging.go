package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogFilePath names the log file of one plugin load,
// e.g. repairmelogs/RepairMe.20260212_213836.log.
func LogFilePath(logsDir, extensionName string, loadedAt time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", extensionName, loadedAt.Format("20060102_150405")),
	)
}

// OpenLogFile creates logsDir and opens the log file for appending. A file
// left by a load in the same second is kept as <path>.old.
func OpenLogFile(logsDir, extensionName string, loadedAt time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating logs dir: %w", err)
	}

	path := LogFilePath(logsDir, extensionName, loadedAt)
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, "", fmt.Errorf("keeping previous log file: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, "", fmt.Errorf("creating log file: %w", err)
	}
	return f, path, nil
}

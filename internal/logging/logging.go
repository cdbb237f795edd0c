package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const stampLayout = "20060102_150405"

// LogFilePath returns logsDir/<app>.<YYYYMMDD_HHMMSS>.log for a run
// started at start.
func LogFilePath(logsDir, app string, start time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", app, start.Format(stampLayout)))
}

// OpenLogFile creates logsDir and opens the run's log file for appending.
func OpenLogFile(logsDir, app string, start time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("creating logs dir: %w", err)
	}
	path := LogFilePath(logsDir, app, start)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create/open log file %s: %w", path, err)
	}
	return f, path, nil
}

// PruneLogs deletes the oldest run logs of app in logsDir until at most
// keep remain. keep <= 0 disables pruning. It returns the removed paths.
func PruneLogs(logsDir, app string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(logsDir, app+".*.log"))
	if err != nil {
		return nil, err
	}
	if len(matches) <= keep {
		return nil, nil
	}
	// the timestamp layout sorts chronologically
	slices.Sort(matches)
	var removed []string
	for _, p := range matches[:len(matches)-keep] {
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("removing %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}

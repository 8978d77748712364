package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// printAuditWarning reports a side effect that failed after a committed change.
func printAuditWarning(err error) {
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
}

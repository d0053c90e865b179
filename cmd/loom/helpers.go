package main

import (
	"fmt"
	"time"

	"loom/internal/queue"
)

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second))
	return d.Round(time.Second).String()
}

func formatQuality(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score)
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func parseStatusArgs(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

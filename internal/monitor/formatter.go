package monitor

import "fmt"

// FormatRate formats a per-second rate as "X.X req/s".
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f req/s", rate)
}

// FormatLatency formats a latency in seconds as "X.Xms" or "X.Xs".
func FormatLatency(latencySeconds float64) string {
	if latencySeconds < 1.0 {
		return fmt.Sprintf("%.1fms", latencySeconds*1000)
	}
	return fmt.Sprintf("%.1fs", latencySeconds)
}

// FormatCount formats a cumulative counter value with no decimal noise.
func FormatCount(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

// FormatDuration formats a duration in seconds as "Xh Ym" or "Xm".
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

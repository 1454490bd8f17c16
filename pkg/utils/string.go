package utils

// Truncate shortens s to maxLen bytes, marking the cut with an ellipsis.
// Used to keep upstream error bodies readable in log lines.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

package monitor

import "strings"

// Activity placeholders shown when a pane yields no line.
const (
	ActivityIdle        = "-"
	ActivityWaiting     = "waiting"
	ActivityUnavailable = "unavailable"

	activityWidth = 25
)

// Activity returns the last non-blank line of pane output, trimmed and cut
// to 25 runes with an ellipsis. Empty output reads as waiting.
func Activity(pane string) string {
	lines := strings.Split(strings.TrimSpace(pane), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > activityWidth {
			return string(runes[:activityWidth]) + "..."
		}
		return line
	}
	return ActivityWaiting
}

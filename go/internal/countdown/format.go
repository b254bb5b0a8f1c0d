package countdown

import (
	"fmt"
	"time"
)

// EndedText is shown once the auction's end time has been reached.
const EndedText = "Auction ended"

// EndingSoonWindow is how close to the end an auction is flagged as ending soon.
const EndingSoonWindow = 10 * time.Minute

// Format renders a positive remaining duration as "Dd Hh Mm Ss", truncating
// each unit. Durations at or below zero render as EndedText.
func Format(remaining time.Duration) string {
	if remaining <= 0 {
		return EndedText
	}

	total := int64(remaining / time.Second)
	days := total / 86400
	hours := (total / 3600) % 24
	minutes := (total / 60) % 60
	seconds := total % 60

	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

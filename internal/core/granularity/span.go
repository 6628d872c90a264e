package granularity

import (
	"fmt"
	"strings"
	"time"
)

// ParseSpan parses a retention or lookback span. It accepts Go duration syntax
// ("90s", "36h") plus whole days ("30d") and whole years ("2y", counted as 365 days).
func ParseSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("span must not be empty")
	}

	if unit := s[len(s)-1]; len(s) > 1 && (unit == 'd' || unit == 'y') {
		var n int
		if _, err := fmt.Sscanf(s, "%d"+string(unit), &n); err != nil {
			return 0, fmt.Errorf("invalid span %q: %w", s, err)
		}
		if n <= 0 {
			return 0, fmt.Errorf("span must be positive, got %q", s)
		}
		day := 24 * time.Hour
		if unit == 'y' {
			return time.Duration(n) * 365 * day, nil
		}
		return time.Duration(n) * day, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid span %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("span must be positive, got %q", s)
	}
	return d, nil
}

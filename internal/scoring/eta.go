package scoring

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultEtaHours is assumed when a delivery ETA cannot be parsed.
const DefaultEtaHours = 24.0

var etaTokenPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-zA-Z]*)`)

// ParseEtaHours converts a free-form delivery ETA ("2H", "1 day", "90min",
// "1d 12h") into hours. Tokens are summed; a bare number is read as hours.
// Unparsable input falls back to DefaultEtaHours.
func ParseEtaHours(eta string) float64 {
	trimmed := strings.TrimSpace(eta)
	if trimmed == "" {
		return DefaultEtaHours
	}

	total := 0.0
	matched := false
	for _, match := range etaTokenPattern.FindAllStringSubmatch(trimmed, -1) {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		unit := strings.ToLower(match[2])
		switch {
		case unit == "" || strings.HasPrefix(unit, "h"):
			total += value
		case strings.HasPrefix(unit, "d"):
			total += value * 24
		case strings.HasPrefix(unit, "m"):
			total += value / 60
		default:
			continue
		}
		matched = true
	}

	if !matched || total <= 0 {
		return DefaultEtaHours
	}
	return total
}

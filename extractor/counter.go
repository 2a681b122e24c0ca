package extractor

import (
	"strconv"
	"strings"

	"github.com/use-agent/tokscrape/models"
)

// emptyCounter is returned for blank input.
var emptyCounter = models.Counter{Value: 0, Formatted: "0", Raw: "0"}

// ParseCount normalizes a shorthand counter ("1.5M", "250K", "1,024") into a
// Counter. It never fails: an unparsable numeric part yields a zero value
// while Formatted and Raw still reflect the input.
func ParseCount(text string) models.Counter {
	if text == "" {
		return emptyCounter
	}

	suffix := text[len(text)-1]
	raw := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		value = 0
	}

	switch suffix {
	case 'M':
		value *= 1_000_000
	case 'K':
		value *= 1_000
	}

	return models.Counter{
		Value:     value,
		Formatted: text,
		Raw:       raw,
	}
}

package domain

import (
	"strconv"
	"strings"
	"time"
)

// isoLayout is "YYYY-MM-DDTHH:MM:SS", no zone designator, matching the
// format ParseIsoToEpochSeconds parses via timegm in the original.
const isoLayout = "2006-01-02T15:04:05"

// ParseTimestamp accepts a Transaction's Timestamp field in either of
// its two legal forms: ISO-8601 (detected by the presence of "T"), with
// an optional fractional-seconds suffix discarded, or decimal
// seconds-since-epoch. Falls back to the zero time if neither parses,
// per the store's "logged and skipped" malformed-row policy.
func ParseTimestamp(s string) (time.Time, error) {
	if strings.Contains(s, "T") {
		if dot := strings.IndexByte(s, '.'); dot != -1 {
			s = s[:dot]
		}
		return time.ParseInLocation(isoLayout, s, time.UTC)
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	whole := int64(seconds)
	frac := seconds - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC(), nil
}

// EpochSeconds is ParseTimestamp reduced to a float64 offset, used for
// SQL ordering/windowing columns and ML feature construction. Unparseable
// timestamps map to 0.
func EpochSeconds(s string) float64 {
	t, err := ParseTimestamp(s)
	if err != nil {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

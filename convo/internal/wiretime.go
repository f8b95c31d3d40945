package internal

import (
	"fmt"
	"time"
)

// WireTimeLayout is the server's timestamp format: ISO-8601 local date-time
// without a zone offset.
const WireTimeLayout = "2006-01-02T15:04:05"

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	WireTimeLayout + ".999999999",
}

// ParseWireTime normalizes a wire-format timestamp string. Both zoned RFC3339
// and the server's zoneless local form are accepted, with optional fractional
// seconds.
func ParseWireTime(s string) (time.Time, error) {
	for _, layout := range wireTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Package timefmt converts reading timestamps between their stored form and
// the ISO-8601 strings the API speaks. A single process-wide mode decides
// whether storage is timezone-aware: aware timestamps travel with an offset,
// naive ones as plain local wall-clock time.
package timefmt

import (
	"strings"
	"time"
)

const naiveLayout = "2006-01-02T15:04:05"

// parse layouts tried in order for filter bounds coming off the wire.
var zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}

var naiveLayouts = []string{
	naiveLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

type Converter struct {
	loc   *time.Location
	aware bool
}

func New(loc *time.Location, aware bool) Converter {
	if loc == nil {
		loc = time.Local
	}
	return Converter{loc: loc, aware: aware}
}

// Now returns the current server time in the configured zone, used to stamp
// new readings.
func (c Converter) Now() time.Time {
	return time.Now().In(c.loc)
}

// Format renders a stored timestamp for the wire. Aware mode converts into
// the configured zone and keeps the offset; naive mode emits the local
// wall-clock time with no offset.
func (c Converter) Format(t time.Time) string {
	t = t.In(c.loc)
	if c.aware {
		return t.Format(time.RFC3339)
	}
	return t.Format(naiveLayout)
}

// Parse turns an ISO-8601 filter bound into a storage-comparable timestamp.
// Zone-less input is assumed to be in the configured zone; zoned input is
// converted into it (and, in naive mode, loses its offset in the process).
// Unparsable input reports ok=false so the caller can skip the filter.
func (c Converter) Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(c.loc), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

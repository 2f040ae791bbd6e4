package archive

import (
	"regexp"
	"time"
)

// The archive embeds the recording start time in segment filenames, but the
// naming scheme differs between firmware revisions. Patterns are tried in
// priority order; the first match wins.
var timestampPatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\d{8}_\d{6}`), "20060102_150405"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}`), "2006-01-02_15-04-05"},
	{regexp.MustCompile(`\d{14}`), "20060102150405"},
}

// ParseFilenameTimestamp extracts the recording start time embedded in a
// segment filename, interpreted in local time. Returns false when no known
// pattern matches; callers must drop such entries rather than defaulting
// them to epoch zero.
func ParseFilenameTimestamp(name string) (time.Time, bool) {
	for _, p := range timestampPatterns {
		m := p.re.FindString(name)
		if m == "" {
			continue
		}
		t, err := time.ParseInLocation(p.layout, m, time.Local)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

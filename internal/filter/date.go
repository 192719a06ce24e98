package filter

import (
	"net/mail"
	"strings"
	"time"
)

// Zone names from RFC 2822 section 4.3. time.Parse does not know their
// offsets, so they are rewritten to numeric form before parsing.
var obsoleteZones = map[string]string{
	"UT":  "+0000",
	"GMT": "+0000",
	"Z":   "+0000",
	"EST": "-0500",
	"EDT": "-0400",
	"CST": "-0600",
	"CDT": "-0500",
	"MST": "-0700",
	"MDT": "-0600",
	"PST": "-0800",
	"PDT": "-0700",
}

// ParseRFC2822 parses an RFC 2822 date-time such as
// "Fri, 13 Feb 2026 10:00:00 +0100".
func ParseRFC2822(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		zone := strings.ToUpper(s[i+1:])
		if offset, ok := obsoleteZones[zone]; ok {
			s = s[:i+1] + offset
		} else if len(zone) == 1 && zone[0] >= 'A' && zone[0] <= 'Z' && zone != "J" {
			// military zones carry no reliable meaning and count as -0000
			s = s[:i+1] + "-0000"
		}
	}
	return mail.ParseDate(s)
}

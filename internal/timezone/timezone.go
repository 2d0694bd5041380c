// Package timezone resolves free-text time expressions and abbreviations
// into IANA zones and converts local wall-clock times to UTC.
//
// Detection is deliberately permissive and best-effort: malformed input
// yields "no match", never a malformed result. Minutes are ignored for
// offset computation; the caller-facing confirmation step absorbs the
// resulting ±30-minute tolerance.
package timezone

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Clock is a parsed wall-clock time of day.
type Clock struct {
	Hours   int
	Minutes int
}

// Guess is a detected timezone. Zone is empty when only the numeric offset
// is known.
type Guess struct {
	Zone              string
	Offset            int // whole hours from UTC
	Display           string
	Abbreviation      string
	NeedsConfirmation bool
}

type zoneInfo struct {
	zone         string
	display      string
	abbreviation string
	offset       int
}

// OffsetZones maps whole-hour UTC offsets to the supported named zones
// (major North American zones plus UTC and London).
var OffsetZones = map[int]zoneInfo{
	-5:  {zone: "America/New_York", display: "Eastern Time", abbreviation: "ET", offset: -5},
	-6:  {zone: "America/Chicago", display: "Central Time", abbreviation: "CT", offset: -6},
	-7:  {zone: "America/Denver", display: "Mountain Time", abbreviation: "MT", offset: -7},
	-8:  {zone: "America/Los_Angeles", display: "Pacific Time", abbreviation: "PT", offset: -8},
	-9:  {zone: "America/Anchorage", display: "Alaska Time", abbreviation: "AKT", offset: -9},
	-10: {zone: "Pacific/Honolulu", display: "Hawaii Time", abbreviation: "HT", offset: -10},
	0:   {zone: "UTC", display: "UTC", abbreviation: "UTC", offset: 0},
	1:   {zone: "Europe/London", display: "GMT/BST", abbreviation: "GMT", offset: 1},
}

// Abbreviations maps common timezone abbreviations to their zones.
var Abbreviations = map[string]zoneInfo{
	"est":  {zone: "America/New_York", display: "Eastern Time", abbreviation: "ET", offset: -5},
	"edt":  {zone: "America/New_York", display: "Eastern Time", abbreviation: "ET", offset: -5},
	"et":   {zone: "America/New_York", display: "Eastern Time", abbreviation: "ET", offset: -5},
	"cst":  {zone: "America/Chicago", display: "Central Time", abbreviation: "CT", offset: -6},
	"cdt":  {zone: "America/Chicago", display: "Central Time", abbreviation: "CT", offset: -6},
	"ct":   {zone: "America/Chicago", display: "Central Time", abbreviation: "CT", offset: -6},
	"mst":  {zone: "America/Denver", display: "Mountain Time", abbreviation: "MT", offset: -7},
	"mdt":  {zone: "America/Denver", display: "Mountain Time", abbreviation: "MT", offset: -7},
	"mt":   {zone: "America/Denver", display: "Mountain Time", abbreviation: "MT", offset: -7},
	"pst":  {zone: "America/Los_Angeles", display: "Pacific Time", abbreviation: "PT", offset: -8},
	"pdt":  {zone: "America/Los_Angeles", display: "Pacific Time", abbreviation: "PT", offset: -8},
	"pt":   {zone: "America/Los_Angeles", display: "Pacific Time", abbreviation: "PT", offset: -8},
	"akst": {zone: "America/Anchorage", display: "Alaska Time", abbreviation: "AKT", offset: -9},
	"akdt": {zone: "America/Anchorage", display: "Alaska Time", abbreviation: "AKT", offset: -9},
	"hst":  {zone: "Pacific/Honolulu", display: "Hawaii Time", abbreviation: "HT", offset: -10},
}

var (
	fillerRe = regexp.MustCompile(`it'?s?\s+|my\s+time\s+is\s+|currently\s+`)

	// Order matters: the 12-hour form with minutes must win over the bare
	// hour form so "3:30pm" doesn't parse as "3pm".
	clockRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(am|pm)`),
		regexp.MustCompile(`(?i)(\d{1,2})\s*(am|pm)`),
		regexp.MustCompile(`(\d{1,2}):(\d{2})`),
	}
)

// ParseClock extracts a wall-clock time from loose input such as
// "it's 3pm", "10:30am", "my time is 2:45pm" or 24-hour "15:30".
func ParseClock(input string) (Clock, bool) {
	cleaned := strings.TrimSpace(fillerRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), ""))

	for _, re := range clockRes {
		m := re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		hours, _ := strconv.Atoi(m[1])
		minutes := 0
		meridiem := ""
		switch len(m) {
		case 4: // hh:mm am/pm
			minutes, _ = strconv.Atoi(m[2])
			meridiem = strings.ToLower(m[3])
		case 3:
			if m[2] == "am" || m[2] == "pm" || m[2] == "AM" || m[2] == "PM" {
				meridiem = strings.ToLower(m[2])
			} else {
				minutes, _ = strconv.Atoi(m[2])
			}
		}
		switch meridiem {
		case "pm":
			if hours != 12 {
				hours += 12
			}
		case "am":
			if hours == 12 {
				hours = 0
			}
		}
		if hours >= 0 && hours <= 23 && minutes >= 0 && minutes <= 59 {
			return Clock{Hours: hours, Minutes: minutes}, true
		}
	}
	return Clock{}, false
}

// Detect guesses the user's timezone either from an exact abbreviation match
// or from the difference between their stated clock time and UTC now.
func Detect(input string, now time.Time) (Guess, bool) {
	text := strings.TrimSpace(fillerRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), ""))
	if zi, ok := Abbreviations[text]; ok {
		return Guess{
			Zone:              zi.zone,
			Offset:            zi.offset,
			Display:           zi.display,
			Abbreviation:      zi.abbreviation,
			NeedsConfirmation: true,
		}, true
	}

	clock, ok := ParseClock(input)
	if !ok {
		return Guess{}, false
	}

	// Whole hours only; minutes stay out of the offset math.
	offset := clock.Hours - now.UTC().Hour()
	if offset > 12 {
		offset -= 24
	}
	if offset < -12 {
		offset += 24
	}

	zi, ok := OffsetZones[offset]
	if !ok {
		return Guess{
			Offset:            offset,
			Display:           fmt.Sprintf("UTC%+d", offset),
			NeedsConfirmation: true,
		}, true
	}
	return Guess{
		Zone:              zi.zone,
		Offset:            offset,
		Display:           zi.display,
		Abbreviation:      zi.abbreviation,
		NeedsConfirmation: true,
	}, true
}

// Layouts accepted for wall-clock input, most specific first.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

const localLayout = "2006-01-02T15:04:05"

// ToUTC interprets value as wall-clock time in zone and re-expresses the
// instant in UTC (RFC 3339). Inputs that already carry an offset keep it.
// On a malformed zone or date the input comes back unchanged together with
// the error; conversion is best-effort.
func ToUTC(value, zone string) (string, error) {
	if strings.TrimSpace(value) == "" || strings.TrimSpace(zone) == "" {
		return value, nil
	}

	// An explicit offset wins over the zone, matching how ISO input with a
	// zone hint is usually treated.
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return value, fmt.Errorf("load zone %q: %w", zone, err)
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return value, errors.New("unrecognized date format: " + value)
}

// ToLocalISO renders an instant as wall-clock time in zone, without an
// offset suffix. ToUTC(ToLocalISO(t, z), z) round-trips.
func ToLocalISO(t time.Time, zone string) (string, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("load zone %q: %w", zone, err)
	}
	return t.In(loc).Format(localLayout), nil
}

// FormatLocal renders an instant as a human date line in zone, falling back
// to UTC when the zone is unknown.
func FormatLocal(t time.Time, zone string) string {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Monday, January 2, 2006 3:04 PM")
}

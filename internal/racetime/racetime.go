package racetime

import (
	"fmt"
	"strconv"
	"strings"
)

// Sentinel values for race-result fields stored in hundredths of a second.
const (
	FieldUnset        = -1
	LevelUnknownDeath = 0
	LevelFinished     = -2
)

const floorsPerZone = 5

// ToString renders a duration in hundredths of a second as [m]:ss.hh.
func ToString(hundredths int) string {
	if hundredths < 0 {
		return "--:--.--"
	}
	minutes := hundredths / 6000
	seconds := (hundredths / 100) % 60
	hh := hundredths % 100
	return fmt.Sprintf("%d:%02d.%02d", minutes, seconds, hh)
}

// Parse reads a duration in the form [m]:ss.hh or ss.hh and returns
// hundredths of a second.
func Parse(s string) (int, error) {
	s = strings.TrimSpace(s)

	minutes := 0
	rest := s
	if i := strings.Index(s, ":"); i >= 0 {
		m, err := strconv.Atoi(s[:i])
		if err != nil || m < 0 {
			return 0, fmt.Errorf("parsing minutes in %q", s)
		}
		minutes = m
		rest = s[i+1:]
	}

	dot := strings.Index(rest, ".")
	if dot < 0 {
		return 0, fmt.Errorf("missing hundredths in %q", s)
	}
	secStr, hhStr := rest[:dot], rest[dot+1:]
	if len(hhStr) != 2 {
		return 0, fmt.Errorf("hundredths must be two digits in %q", s)
	}
	seconds, err := strconv.Atoi(secStr)
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("parsing seconds in %q", s)
	}
	hh, err := strconv.Atoi(hhStr)
	if err != nil || hh < 0 {
		return 0, fmt.Errorf("parsing hundredths in %q", s)
	}
	return minutes*6000 + seconds*100 + hh, nil
}

// LevelString renders a death level as zone-floor, e.g. 4-4.
func LevelString(level int) string {
	if level <= 0 {
		return ""
	}
	zone := (level-1)/floorsPerZone + 1
	floor := (level-1)%floorsPerZone + 1
	return fmt.Sprintf("%d-%d", zone, floor)
}

// ParseLevel reads a zone-floor level identifier such as 4-4.
func ParseLevel(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, fmt.Errorf("level %q is not in zone-floor form", s)
	}
	zone, err := strconv.Atoi(parts[0])
	if err != nil || zone < 1 || zone > 5 {
		return 0, fmt.Errorf("bad zone in level %q", s)
	}
	floor, err := strconv.Atoi(parts[1])
	if err != nil || floor < 1 || floor > floorsPerZone {
		return 0, fmt.Errorf("bad floor in level %q", s)
	}
	return (zone-1)*floorsPerZone + floor, nil
}

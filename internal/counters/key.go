package counters

import (
	"fmt"
	"net/url"
	"strings"

	"ms-salesreport/internal/models"
)

// EncodingPrefix marks keys produced by Key.Encode.
const EncodingPrefix = "v2|"

// Key identifies one live passenger counter: a route, a stop, a scheduled
// departure and a fare class.
type Key struct {
	Departure   string
	Destination string
	Stop        string
	Hour        int
	Minute      int
	Gold        bool
}

func (k Key) RouteLabel() string {
	return strings.ToLower(k.Departure + " - " + k.Destination)
}

func (k Key) Clock() string {
	return fmt.Sprintf("%02d:%02d", k.Hour, k.Minute)
}

// String renders the key the UI joins counts on:
// "<departure> - <destination>-<stop>-HH:MM[-gold]", lowercased.
func (k Key) String() string {
	s := k.RouteLabel() + "-" + strings.ToLower(k.Stop) + "-" + k.Clock()
	if k.Gold {
		s += "-gold"
	}
	return s
}

// Ambiguous reports whether String may collide with another key because a
// route or stop name itself contains a hyphen.
func (k Key) Ambiguous() bool {
	return strings.Contains(k.Departure, "-") ||
		strings.Contains(k.Destination, "-") ||
		strings.Contains(k.Stop, "-")
}

// Encode is a collision-free form of the key: each part is escaped and the
// parts are joined with '|'.
func (k Key) Encode() string {
	class := string(models.FareRegular)
	if k.Gold {
		class = string(models.FareGold)
	}
	parts := []string{
		url.PathEscape(strings.ToLower(k.Departure)),
		url.PathEscape(strings.ToLower(k.Destination)),
		url.PathEscape(strings.ToLower(k.Stop)),
		k.Clock(),
		class,
	}
	return EncodingPrefix + strings.Join(parts, "|")
}

// DecodeKey parses the output of Encode. Names come back lowercased.
func DecodeKey(s string) (Key, error) {
	if !strings.HasPrefix(s, EncodingPrefix) {
		return Key{}, fmt.Errorf("counter key %q: missing %q prefix: %w", s, EncodingPrefix, models.ErrValidation)
	}
	parts := strings.Split(strings.TrimPrefix(s, EncodingPrefix), "|")
	if len(parts) != 5 {
		return Key{}, fmt.Errorf("counter key %q: expected 5 parts, got %d: %w", s, len(parts), models.ErrValidation)
	}
	var k Key
	var err error
	for i, dst := range []*string{&k.Departure, &k.Destination, &k.Stop} {
		if *dst, err = url.PathUnescape(parts[i]); err != nil {
			return Key{}, fmt.Errorf("counter key %q: %v: %w", s, err, models.ErrValidation)
		}
	}
	if k.Hour, k.Minute, err = ParseClock(parts[3]); err != nil {
		return Key{}, err
	}
	switch models.FareClass(parts[4]) {
	case models.FareGold:
		k.Gold = true
	case models.FareRegular:
	default:
		return Key{}, fmt.Errorf("counter key %q: unknown fare class %q: %w", s, parts[4], models.ErrValidation)
	}
	return k, nil
}

// ParseClock parses a 24-hour "HH:MM" departure time.
func ParseClock(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("time %q is not HH:MM: %w", s, models.ErrValidation)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("time %q is not HH:MM: %w", s, models.ErrValidation)
	}
	if !ValidClock(hour, minute) {
		return 0, 0, fmt.Errorf("time %q out of range: %w", s, models.ErrValidation)
	}
	return hour, minute, nil
}

func ValidClock(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// KeyForDraft maps a ticket draft onto its counter. Names are trimmed the
// same way the stored ticket is.
func KeyForDraft(d models.TicketDraft) Key {
	return Key{
		Departure:   strings.TrimSpace(d.Departure),
		Destination: strings.TrimSpace(d.Destination),
		Stop:        strings.TrimSpace(d.Stop),
		Hour:        d.Hour,
		Minute:      d.Minute,
		Gold:        d.FareClass == models.FareGold,
	}
}

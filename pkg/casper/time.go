package casper

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp has millisecond precision on the wire.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

func TimestampFromMillis(ms int64) Timestamp {
	return NewTimestamp(time.UnixMilli(ms))
}

func (t Timestamp) Millis() uint64 {
	return uint64(t.UnixMilli())
}

func (t Timestamp) String() string {
	return t.UTC().Format(timestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return errors.Wrapf(err, "invalid timestamp %q", s)
	}

	*t = NewTimestamp(parsed)
	return nil
}

// TTL is a deploy time-to-live, written in humantime notation ("30m",
// "6h", "1day 12h").
type TTL time.Duration

func (ttl TTL) Duration() time.Duration {
	return time.Duration(ttl)
}

func (ttl TTL) Millis() uint64 {
	return uint64(time.Duration(ttl).Milliseconds())
}

func (ttl TTL) String() string {
	ms := time.Duration(ttl).Milliseconds()
	if ms <= 0 {
		return "0s"
	}

	var parts []string
	for _, u := range ttlFormatUnits {
		n := ms / u.millis
		if n == 0 {
			continue
		}
		ms -= n * u.millis

		name := u.name
		if u.plural && n > 1 {
			name += "s"
		}
		parts = append(parts, strconv.FormatInt(n, 10)+name)
	}

	return strings.Join(parts, " ")
}

func (ttl TTL) MarshalJSON() ([]byte, error) {
	return json.Marshal(ttl.String())
}

func (ttl *TTL) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseTTL(s)
	if err != nil {
		return err
	}

	*ttl = parsed
	return nil
}

type ttlUnit struct {
	name   string
	millis int64
	plural bool
}

var ttlFormatUnits = []ttlUnit{
	{name: "day", millis: 24 * 60 * 60 * 1000, plural: true},
	{name: "h", millis: 60 * 60 * 1000},
	{name: "m", millis: 60 * 1000},
	{name: "s", millis: 1000},
	{name: "ms", millis: 1},
}

var ttlParseUnits = map[string]int64{
	"ms": 1, "msec": 1, "millis": 1,
	"s": 1000, "sec": 1000, "secs": 1000, "second": 1000, "seconds": 1000,
	"m": 60 * 1000, "min": 60 * 1000, "mins": 60 * 1000, "minute": 60 * 1000, "minutes": 60 * 1000,
	"h": 60 * 60 * 1000, "hr": 60 * 60 * 1000, "hrs": 60 * 60 * 1000, "hour": 60 * 60 * 1000, "hours": 60 * 60 * 1000,
	"d": 24 * 60 * 60 * 1000, "day": 24 * 60 * 60 * 1000, "days": 24 * 60 * 60 * 1000,
	"w": 7 * 24 * 60 * 60 * 1000, "week": 7 * 24 * 60 * 60 * 1000, "weeks": 7 * 24 * 60 * 60 * 1000,
}

func ParseTTL(s string) (TTL, error) {
	rest := strings.TrimSpace(s)
	if rest == "" {
		return 0, errors.New("empty ttl")
	}

	var total int64
	for rest != "" {
		i := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsDigit(r) })
		if i == 0 {
			return 0, errors.Errorf("invalid ttl %q: expected a number", s)
		}
		if i < 0 {
			return 0, errors.Errorf("invalid ttl %q: missing unit", s)
		}

		n, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid ttl %q", s)
		}
		rest = strings.TrimLeft(rest[i:], " ")

		j := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsLetter(r) })
		if j < 0 {
			j = len(rest)
		}

		millis, ok := ttlParseUnits[rest[:j]]
		if !ok {
			return 0, errors.Errorf("invalid ttl %q: unknown unit %q", s, rest[:j])
		}

		total += n * millis
		rest = strings.TrimSpace(rest[j:])
	}

	return TTL(time.Duration(total) * time.Millisecond), nil
}

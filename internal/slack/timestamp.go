package slack

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a Slack message timestamp ("1737676800.123456"). It doubles as
// the message id within a conversation and as the read cursor.
type Timestamp string

// TimestampFromTime formats t with microsecond precision.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000))
}

// IsZero reports an unset cursor. Slack uses "0000000000.000000" for channels
// that were never read.
func (t Timestamp) IsZero() bool {
	sec, micro, ok := t.parts()
	if !ok {
		return t == ""
	}
	return sec == 0 && micro == 0
}

func (t Timestamp) parts() (sec, micro int64, ok bool) {
	s := string(t)
	if s == "" {
		return 0, 0, false
	}
	whole, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	if frac != "" {
		frac += strings.Repeat("0", 6-len(frac))
		micro, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	return sec, micro, true
}

// Compare orders timestamps numerically. Empty and unparsable values sort
// before every valid timestamp; two unparsable values compare as strings.
func (t Timestamp) Compare(o Timestamp) int {
	ts, tm, tok := t.parts()
	os, om, ook := o.parts()
	switch {
	case !tok && !ook:
		return strings.Compare(string(t), string(o))
	case !tok:
		return -1
	case !ook:
		return 1
	}
	switch {
	case ts < os:
		return -1
	case ts > os:
		return 1
	case tm < om:
		return -1
	case tm > om:
		return 1
	}
	return 0
}

func (t Timestamp) After(o Timestamp) bool  { return t.Compare(o) > 0 }
func (t Timestamp) Before(o Timestamp) bool { return t.Compare(o) < 0 }

// Time converts to wall-clock time; the zero time for invalid values.
func (t Timestamp) Time() time.Time {
	sec, micro, ok := t.parts()
	if !ok {
		return time.Time{}
	}
	return time.Unix(sec, micro*1000)
}

// PermalinkID is the "p" path segment Slack uses in message links.
func (t Timestamp) PermalinkID() string {
	return "p" + strings.ReplaceAll(string(t), ".", "")
}

func (t Timestamp) String() string { return string(t) }

// MaxTimestamp returns the newest of ts, or "" when ts is empty.
func MaxTimestamp(ts ...Timestamp) Timestamp {
	var newest Timestamp
	for _, t := range ts {
		if newest == "" || t.After(newest) {
			newest = t
		}
	}
	return newest
}

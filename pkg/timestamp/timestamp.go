package timestamp

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Timestamp is the seconds-plus-nanoseconds encoding used by document stores
type Timestamp struct {
	Seconds     int64 `json:"seconds" bson:"seconds"`
	Nanoseconds int32 `json:"nanoseconds" bson:"nanoseconds"`
}

// Time converts the timestamp to time.Time
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanoseconds)).UTC()
}

// FromTime builds a Timestamp from a time.Time
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int32(t.Nanosecond())}
}

// layouts accepted for string encodings, tried in order
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Normalize maps every known encoding of an instant to time.Time.
// Returns false for nil, zero values and anything it does not recognise;
// callers treat that as an absent timestamp.
func Normalize(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return nonZero(t)
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return nonZero(*t)
	case Timestamp:
		return fromParts(t.Seconds, int64(t.Nanoseconds))
	case *Timestamp:
		if t == nil {
			return time.Time{}, false
		}
		return fromParts(t.Seconds, int64(t.Nanoseconds))
	case *timestamppb.Timestamp:
		if t == nil || !t.IsValid() {
			return time.Time{}, false
		}
		return fromParts(t.GetSeconds(), int64(t.GetNanos()))
	case primitive.DateTime:
		if t == 0 {
			return time.Time{}, false
		}
		return t.Time().UTC(), true
	case primitive.Timestamp:
		if t.T == 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(t.T), 0).UTC(), true
	case map[string]any:
		return fromMap(t)
	case string:
		return parseString(t)
	case *string:
		if t == nil {
			return time.Time{}, false
		}
		return parseString(*t)
	default:
		return time.Time{}, false
	}
}

func nonZero(t time.Time) (time.Time, bool) {
	if t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

func fromParts(sec, nsec int64) (time.Time, bool) {
	if sec == 0 && nsec == 0 {
		return time.Time{}, false
	}
	if nsec < 0 || nsec >= int64(time.Second) {
		return time.Time{}, false
	}
	return time.Unix(sec, nsec).UTC(), true
}

func fromMap(m map[string]any) (time.Time, bool) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, false
	}
	sec, ok := toInt64(secRaw)
	if !ok {
		return time.Time{}, false
	}

	var nsec int64
	nsecRaw, ok := m["nanoseconds"]
	if !ok {
		nsecRaw, ok = m["_nanoseconds"]
	}
	if ok {
		if nsec, ok = toInt64(nsecRaw); !ok {
			return time.Time{}, false
		}
	}
	return fromParts(sec, nsec)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return nonZero(t.UTC())
		}
	}
	return time.Time{}, false
}

package domain

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// OIDKey tags an embedded identifier in the document wire form.
	OIDKey = "$oid"
	// DateKey tags an embedded timestamp in the document wire form.
	DateKey = "$date"
	// TimestampLayout is the millisecond-resolution layout used for $date values.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

// ObjectID is the opaque 24 hex character identifier assigned to persisted documents.
type ObjectID string

// NewObjectID returns a fresh identifier: 4 bytes of unix seconds followed by
// 8 random bytes.
func NewObjectID() ObjectID {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	if _, err := rand.Read(b[4:]); err != nil {
		panic(err)
	}
	return ObjectID(hex.EncodeToString(b[:]))
}

// ParseObjectID validates s as a 24 character hex identifier.
func ParseObjectID(s string) (ObjectID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 24 {
		return "", fmt.Errorf("object id %q: expected 24 hex characters", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("object id %q: %w", s, err)
	}
	return ObjectID(s), nil
}

// IsZero reports whether the identifier is unset.
func (id ObjectID) IsZero() bool { return id == "" }

// Hex returns the identifier as a plain string.
func (id ObjectID) Hex() string { return string(id) }

// Wire returns the single-key wrapper used when embedding the identifier.
func (id ObjectID) Wire() map[string]any {
	return map[string]any{OIDKey: string(id)}
}

// ObjectIDFromWire extracts an identifier from its wire wrapper. Bare
// ObjectID values are accepted as well.
func ObjectIDFromWire(v any) (ObjectID, bool) {
	switch t := v.(type) {
	case ObjectID:
		return t, !t.IsZero()
	case map[string]any:
		if len(t) != 1 {
			return "", false
		}
		s, ok := t[OIDKey].(string)
		if !ok || s == "" {
			return "", false
		}
		return ObjectID(s), true
	case Document:
		return ObjectIDFromWire(map[string]any(t))
	}
	return "", false
}

// RoundTime converts t to UTC at millisecond resolution, the native
// resolution of the stores.
func RoundTime(t time.Time) time.Time {
	return t.UTC().Round(time.Millisecond)
}

// TimestampWire returns the tagged wire form of t.
func TimestampWire(t time.Time) map[string]any {
	return map[string]any{DateKey: RoundTime(t).Format(TimestampLayout)}
}

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// TimestampFromWire parses a tagged timestamp. The $date payload may be a
// formatted string or a number of milliseconds since the epoch.
func TimestampFromWire(v any) (time.Time, bool) {
	var raw any
	switch t := v.(type) {
	case time.Time:
		return RoundTime(t), true
	case map[string]any:
		if len(t) != 1 {
			return time.Time{}, false
		}
		var ok bool
		if raw, ok = t[DateKey]; !ok {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}
	switch p := raw.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, p); err == nil {
				return RoundTime(ts), true
			}
		}
	case float64:
		return RoundTime(time.UnixMilli(int64(p))), true
	}
	return time.Time{}, false
}

package settings

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// snapshot is an immutable copy of the settings table.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// Store caches DB-backed settings in memory. Readers never touch the database;
// writers refresh the snapshot after committing.
type Store struct {
	current atomic.Pointer[snapshot]
}

// NewStore returns an empty store. Call Refresh before serving traffic.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&snapshot{values: map[string]json.RawMessage{}})
	return s
}

// replace swaps in a new snapshot built from values.
func (s *Store) replace(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		next[key] = append(json.RawMessage(nil), v...)
	}
	s.current.Store(&snapshot{updatedAt: updatedAt.UTC(), values: next})
}

// UpdatedAt returns the newest row timestamp seen by the last refresh.
func (s *Store) UpdatedAt() time.Time {
	return s.current.Load().updatedAt
}

// Value returns a copy of the raw value for key.
func (s *Store) Value(key string) (json.RawMessage, bool) {
	val, ok := s.current.Load().values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), val...), true
}

// Int returns key as an integer, or fallback when it is missing or malformed.
func (s *Store) Int(key string, fallback int) int {
	raw, ok := s.Value(key)
	if !ok {
		return fallback
	}
	if parsed, okParse := parseInt(raw); okParse {
		return parsed
	}
	return fallback
}

// AfternoonCutoffMinutes returns the global cutoff in minutes after midnight.
func (s *Store) AfternoonCutoffMinutes() int {
	minutes := s.Int(AfternoonCutoffKey, DefaultAfternoonCutoffMinutes)
	if minutes < 0 || minutes >= 24*60 {
		return DefaultAfternoonCutoffMinutes
	}
	return minutes
}

// ResetTokenTTL returns the lifetime of portal reset tokens.
func (s *Store) ResetTokenTTL() time.Duration {
	hours := s.Int(ResetTokenTTLHoursKey, DefaultResetTokenTTLHours)
	if hours <= 0 {
		hours = DefaultResetTokenTTLHours
	}
	return time.Duration(hours) * time.Hour
}

// parseInt accepts a JSON number or a JSON string holding an integer.
func parseInt(raw json.RawMessage) (int, bool) {
	var n int
	if errUnmarshal := json.Unmarshal(raw, &n); errUnmarshal == nil {
		return n, true
	}
	var s string
	if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal == nil {
		if parsed, errParse := strconv.Atoi(strings.TrimSpace(s)); errParse == nil {
			return parsed, true
		}
	}
	return 0, false
}

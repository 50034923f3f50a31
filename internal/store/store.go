// Package store is the two-tier key-value adapter the engine persists
// through: a session tier living as long as the app process and a durable
// tier backed by an embedded database. The store is shared with other
// subsystems and unsynchronized across writers, so every engine key is
// namespaced under "pulse." and values are re-read before merge writes.
package store

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/multierr"

	_ "modernc.org/sqlite"
)

// Fixed shared-state keys.
const (
	KeyAuthUser       = "pulse.auth.user"
	KeyEPGSnapshot    = "pulse.epg.snapshot"
	KeyActivePackages = "pulse.entitle.active"
	KeyPackageMap     = "pulse.entitle.packages"

	routeMarkerPrefix = "pulse.route.marker."
)

// RouteMarkerKey names the remembered focus/scroll marker of a route.
func RouteMarkerKey(route string) string {
	return routeMarkerPrefix + route
}

type Tier interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// Store bundles the two tiers.
type Store struct {
	Session Tier
	Durable Tier
}

func (s *Store) Close() error {
	var err error
	if s.Session != nil {
		err = multierr.Append(err, s.Session.Close())
	}
	if s.Durable != nil {
		err = multierr.Append(err, s.Durable.Close())
	}
	return err
}

// ClearRouteMarkers drops every remembered per-route marker from both tiers.
// Runs on logout and on the designated sidebar navigations.
func (s *Store) ClearRouteMarkers() error {
	var err error
	for _, t := range []Tier{s.Session, s.Durable} {
		if t == nil {
			continue
		}
		keys, kerr := t.Keys(routeMarkerPrefix)
		if kerr != nil {
			err = multierr.Append(err, kerr)
			continue
		}
		for _, k := range keys {
			err = multierr.Append(err, t.Remove(k))
		}
	}
	return err
}

func GetString(t Tier, key, def string) string {
	if b, ok := t.Get(key); ok {
		return string(b)
	}
	return def
}

func SetString(t Tier, key, val string) error {
	return t.Set(key, []byte(val))
}

// GetJSON decodes the stored value, falling back to def when the key is
// absent or unreadable.
func GetJSON[T any](t Tier, key string, def T) T {
	b, ok := t.Get(key)
	if !ok {
		return def
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return def
	}
	return v
}

func SetJSON[T any](t Tier, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.Set(key, b)
}

// Envelope wraps a cached value with its write time, the shape used for the
// EPG/manifest snapshot keys.
type Envelope[T any] struct {
	At    time.Time `json:"at"`
	Value T         `json:"value"`
}

func SetEnveloped[T any](t Tier, key string, v T, at time.Time) error {
	return SetJSON(t, key, Envelope[T]{At: at, Value: v})
}

func GetEnveloped[T any](t Tier, key string) (Envelope[T], bool) {
	b, ok := t.Get(key)
	if !ok {
		return Envelope[T]{}, false
	}
	var e Envelope[T]
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope[T]{}, false
	}
	return e, true
}

// MemoryTier is the session-lifetime tier.
type MemoryTier struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *MemoryTier {
	return &MemoryTier{data: make(map[string][]byte)}
}

func (m *MemoryTier) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

func (m *MemoryTier) Set(key string, val []byte) error {
	b := make([]byte, len(val))
	copy(b, val)
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryTier) Remove(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryTier) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemoryTier) Close() error { return nil }

// SQLiteTier is the durable tier, a single kv table in an embedded database.
type SQLiteTier struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteTier, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v BLOB NOT NULL)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteTier{db: db}, nil
}

func (s *SQLiteTier) Get(key string) ([]byte, bool) {
	var v []byte
	err := s.db.QueryRow(`SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (s *SQLiteTier) Set(key string, val []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, val)
	return err
}

func (s *SQLiteTier) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE k = ?`, key)
	return err
}

func (s *SQLiteTier) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT k FROM kv WHERE k LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLiteTier) Close() error { return s.db.Close() }

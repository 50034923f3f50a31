package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tiersUnderTest(t *testing.T) map[string]Tier {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Tier{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestTier_RoundTripAndRemove(t *testing.T) {
	for name, tier := range tiersUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, ok := tier.Get("missing")
			assert.False(t, ok)

			require.NoError(t, tier.Set("k", []byte("v1")))
			b, ok := tier.Get("k")
			require.True(t, ok)
			assert.Equal(t, "v1", string(b))

			require.NoError(t, tier.Set("k", []byte("v2")))
			b, _ = tier.Get("k")
			assert.Equal(t, "v2", string(b), "set overwrites")

			require.NoError(t, tier.Remove("k"))
			_, ok = tier.Get("k")
			assert.False(t, ok)

			assert.NoError(t, tier.Remove("k"), "removing an absent key is fine")
		})
	}
}

func TestTier_KeysByPrefix(t *testing.T) {
	for name, tier := range tiersUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tier.Set(RouteMarkerKey("/guide"), []byte("row:4")))
			require.NoError(t, tier.Set(RouteMarkerKey("/vod"), []byte("tile:9")))
			require.NoError(t, tier.Set(KeyAuthUser, []byte("kim")))

			keys, err := tier.Keys(routeMarkerPrefix)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{
				RouteMarkerKey("/guide"),
				RouteMarkerKey("/vod"),
			}, keys)
		})
	}
}

func TestMemoryTier_CopiesOnBothSides(t *testing.T) {
	m := NewMemory()
	in := []byte("abc")
	require.NoError(t, m.Set("k", in))
	in[0] = 'X'

	out, _ := m.Get("k")
	assert.Equal(t, "abc", string(out))
	out[0] = 'Y'

	again, _ := m.Get("k")
	assert.Equal(t, "abc", string(again))
}

func TestStore_ClearRouteMarkersTouchesBothTiers(t *testing.T) {
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	s := &Store{Session: NewMemory(), Durable: sq}
	defer s.Close()

	for _, tier := range []Tier{s.Session, s.Durable} {
		require.NoError(t, tier.Set(RouteMarkerKey("/guide"), []byte("row:4")))
		require.NoError(t, tier.Set(KeyActivePackages, []byte(`["p1"]`)))
	}

	require.NoError(t, s.ClearRouteMarkers())

	for _, tier := range []Tier{s.Session, s.Durable} {
		_, ok := tier.Get(RouteMarkerKey("/guide"))
		assert.False(t, ok)
		_, ok = tier.Get(KeyActivePackages)
		assert.True(t, ok, "non-marker keys untouched")
	}
}

func TestJSONHelpers_DefaultOnAbsentOrGarbage(t *testing.T) {
	m := NewMemory()

	assert.Equal(t, []string{"def"}, GetJSON(m, "absent", []string{"def"}))

	require.NoError(t, m.Set("garbage", []byte("{not json")))
	assert.Equal(t, 7, GetJSON(m, "garbage", 7))

	require.NoError(t, SetJSON(m, "list", []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, GetJSON(m, "list", []string(nil)))
}

func TestStringHelpers(t *testing.T) {
	m := NewMemory()
	assert.Equal(t, "fallback", GetString(m, KeyAuthUser, "fallback"))
	require.NoError(t, SetString(m, KeyAuthUser, "kim"))
	assert.Equal(t, "kim", GetString(m, KeyAuthUser, "fallback"))
}

func TestEnvelope_CarriesWriteTime(t *testing.T) {
	m := NewMemory()
	at := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	require.NoError(t, SetEnveloped(m, KeyEPGSnapshot, map[string]int{"ch9": 42}, at))
	e, ok := GetEnveloped[map[string]int](m, KeyEPGSnapshot)
	require.True(t, ok)
	assert.True(t, e.At.Equal(at))
	assert.Equal(t, 42, e.Value["ch9"])

	_, ok = GetEnveloped[int](m, "absent")
	assert.False(t, ok)
}

func TestSQLiteTier_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.db")

	sq, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, sq.Set(KeyPackageMap, []byte(`{"p1":{}}`)))
	require.NoError(t, sq.Close())

	sq2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer sq2.Close()
	b, ok := sq2.Get(KeyPackageMap)
	require.True(t, ok)
	assert.JSONEq(t, `{"p1":{}}`, string(b))
}

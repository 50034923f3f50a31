package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbletv/pulse/internal/event"
)

var now = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func one(t *testing.T, raw string) event.StreamEvent {
	t.Helper()
	events := Normalize([]byte(raw), now)
	require.Len(t, events, 1)
	return events[0]
}

func TestNormalize_MalformedPayloads(t *testing.T) {
	for _, raw := range []string{"", "not json", "[1,2,3]", `"just a string"`, "42"} {
		assert.Empty(t, Normalize([]byte(raw), now), "raw=%q", raw)
	}
}

func TestNormalize_LongFormWinsOverShortForm(t *testing.T) {
	ev := one(t, `{"scrollMessages":[{"id":"s1","message":"long text","m":"short text","enabled":true}]}`)
	require.Equal(t, event.KindCombinedSnapshot, ev.Kind)
	require.Len(t, ev.Snapshot.ScrollMessages, 1)
	assert.Equal(t, "long text", ev.Snapshot.ScrollMessages[0].Message)
}

func TestNormalize_ShortFormUsedWhenAlone(t *testing.T) {
	ev := one(t, `{"scrollMessages":[{"i":"s1","m":"short text","e":1}]}`)
	sr := ev.Snapshot.ScrollMessages[0]
	assert.Equal(t, "s1", sr.ID)
	assert.Equal(t, "short text", sr.Message)
	assert.True(t, sr.Enabled)
}

func TestNormalize_OmittedVsEmptyArray(t *testing.T) {
	omitted := one(t, `{"fingerprints":[{"id":"f1","displayName":"DE-1"}]}`)
	assert.Nil(t, omitted.Snapshot.ScrollMessages, "omitted key must stay nil")
	assert.NotNil(t, omitted.Snapshot.Fingerprints)

	empty := one(t, `{"scrollMessages":[]}`)
	require.NotNil(t, empty.Snapshot.ScrollMessages, "empty array must survive as empty, not nil")
	assert.Len(t, empty.Snapshot.ScrollMessages, 0)
}

func TestNormalize_DisableSignalsClassifyAsDelete(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"op delete", `{"type":"scroll","op":"delete","id":"x"}`},
		{"enabled false", `{"type":"scroll","message":"hi","enabled":false}`},
		{"enabled zero", `{"type":"scroll","message":"hi","enabled":0}`},
		{"active false", `{"type":"fingerprint","message":"hi","active":false}`},
		{"toggle zero", `{"type":"scroll","message":"hi","toggle":0}`},
		{"status off", `{"type":"scroll","message":"hi","status":"off"}`},
		{"empty message key", `{"type":"scroll","message":"  "}`},
		{"nested payload", `{"type":"scroll","payload":{"op":"delete"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := one(t, tc.raw)
			assert.Equal(t, event.KindDelete, ev.Kind)
		})
	}
}

func TestNormalize_DeleteWinsOverTypeClassification(t *testing.T) {
	ev := one(t, `{"type":"fingerprint","payload":{"id":"f","message":"x","enabled":false}}`)
	assert.Equal(t, event.KindDelete, ev.Kind)
}

func TestNormalize_HandshakeNoticesAreDropped(t *testing.T) {
	// No message key at all: the empty-message disable signal must not fire.
	for _, raw := range []string{
		`{"type":"connected"}`,
		`{"type":"welcome","sessionId":"abc"}`,
		`{"event":"ping"}`,
	} {
		assert.Empty(t, Normalize([]byte(raw), now), "raw=%q", raw)
	}
}

func TestNormalize_DiscreteScrollAndFingerprint(t *testing.T) {
	sc := one(t, `{"type":"scroll_message","payload":{"id":"n1","message":"storm warning"}}`)
	require.Equal(t, event.KindScrollMessage, sc.Kind)
	assert.Equal(t, "n1", sc.Notice.ID)
	assert.Equal(t, "storm warning", sc.Notice.Text)

	fp := one(t, `{"type":"finger_print","m":"DE-992-X"}`)
	require.Equal(t, event.KindFingerprint, fp.Kind)
	assert.Equal(t, "DE-992-X", fp.Notice.Text)
	assert.NotEmpty(t, fp.Notice.ID, "missing id must be synthesized")
}

func TestNormalize_ForceScopeDefaultsToGlobal(t *testing.T) {
	ev := one(t, `{"forceMessages":[{"id":"F1","title":"Maintenance","message":"tonight"}]}`)
	require.Len(t, ev.Snapshot.ForceMessages, 1)
	fr := ev.Snapshot.ForceMessages[0]
	assert.Equal(t, event.ScopeGlobal, fr.Scope)
	assert.True(t, fr.Enabled)
}

func TestNormalize_ScrollScopeAndChannels(t *testing.T) {
	ev := one(t, `{"scrollMessages":[
		{"id":"a","message":"global","enabled":true},
		{"id":"b","message":"player only","enabled":true,"scope":"PLAYER"},
		{"id":"c","message":"channel","enabled":true,"channelId":"ch9"}
	]}`)
	rules := ev.Snapshot.ScrollMessages
	require.Len(t, rules, 3)
	assert.False(t, rules[0].PlayerScoped())
	assert.True(t, rules[1].PlayerScoped())
	assert.True(t, rules[2].PlayerScoped())
	assert.Equal(t, []string{"ch9"}, rules[2].Channels)
}

func TestNormalize_SettingsParsing(t *testing.T) {
	off := one(t, `{"fingerprints":[],"settings":{"globalFingerprintEnabled":false}}`)
	require.NotNil(t, off.Snapshot.Settings)
	assert.False(t, off.Snapshot.Settings.GlobalFingerprintEnabled)
	assert.True(t, off.Snapshot.Settings.PlayerFingerprintEnabled, "absent key implies enabled")

	absent := one(t, `{"fingerprints":[]}`)
	assert.Nil(t, absent.Snapshot.Settings)
}

func TestNormalize_SnapshotDerivesGranularEvents(t *testing.T) {
	events := Normalize([]byte(`{
		"scrollMessages":[],
		"userBlocks":[{"username":"kim","isBlocked":true}],
		"userUpdates":[{"customerNo":"C77"}],
		"packageUpdates":[{"packageId":"P1"},{"serviceId":"P2"},{"packageId":"P1"}]
	}`), now)
	require.Len(t, events, 4)

	assert.Equal(t, event.KindCombinedSnapshot, events[0].Kind)
	assert.Equal(t, event.KindUserBlock, events[1].Kind)
	require.Len(t, events[1].Blocks, 1)
	assert.True(t, events[1].Blocks[0].Blocked)

	assert.Equal(t, event.KindEntitlementUserUpdate, events[2].Kind)
	assert.Equal(t, []string{"C77"}, events[2].Accounts)

	assert.Equal(t, event.KindEntitlementPackageUpdate, events[3].Kind)
	assert.Equal(t, []string{"P1", "P2"}, events[3].Packages, "package ids deduplicated")
}

func TestNormalize_UnknownSnapshotFieldsIgnored(t *testing.T) {
	ev := one(t, `{"scrollMessages":[{"id":"s","message":"ok","enabled":true}],"futureField":{"x":1}}`)
	assert.Equal(t, event.KindCombinedSnapshot, ev.Kind)
}

func TestNormalize_StringTruthiness(t *testing.T) {
	ev := one(t, `{"type":"scroll","message":"hi","enabled":"0"}`)
	assert.Equal(t, event.KindDelete, ev.Kind)

	ev = one(t, `{"type":"scroll","message":"hi","enabled":"true"}`)
	assert.Equal(t, event.KindScrollMessage, ev.Kind)
}

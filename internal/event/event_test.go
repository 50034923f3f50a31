package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdentity_MatchPrecedence(t *testing.T) {
	id := Identity{Username: "kim", CustomerNo: "C1", UserID: "u9"}

	assert.True(t, id.Matches(UserBlock{Username: "kim"}))
	assert.False(t, id.Matches(UserBlock{Username: "sam", CustomerNo: "C1"}),
		"username present on both sides decides, even when weaker fields agree")
	assert.True(t, id.Matches(UserBlock{CustomerNo: "C1"}))
	assert.True(t, id.Matches(UserBlock{UserID: "u9"}))
	assert.False(t, id.Matches(UserBlock{}))

	anon := Identity{}
	assert.False(t, anon.Matches(UserBlock{Username: "kim", CustomerNo: "C1", UserID: "u9"}))
}

func TestScrollRule_PlayerScoped(t *testing.T) {
	assert.False(t, ScrollRule{}.PlayerScoped())
	assert.True(t, ScrollRule{Scope: "player"}.PlayerScoped())
	assert.True(t, ScrollRule{Scope: "PLAYER"}.PlayerScoped())
	assert.True(t, ScrollRule{Channels: []string{"ch9"}}.PlayerScoped())
	assert.False(t, ScrollRule{Scope: "global"}.PlayerScoped())
}

func TestSynthesizeID(t *testing.T) {
	at := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

	a := SynthesizeID("storm warning", at)
	assert.Equal(t, a, SynthesizeID("storm warning", at), "deterministic")
	assert.NotEqual(t, a, SynthesizeID("other text", at))
	assert.NotEqual(t, a, SynthesizeID("storm warning", at.Add(time.Nanosecond)))
	assert.Regexp(t, `^evt-[0-9a-f]{16}$`, a)
}

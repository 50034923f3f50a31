// Package normalize maps the loosely-typed wire payloads of the push stream
// onto the canonical StreamEvent union. Two shapes exist: a combined snapshot
// (any of the rule-array keys present) and a discrete notice. Anything else
// rejects to Unknown and is dropped here rather than thrown at the caller.
package normalize

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nimbletv/pulse/internal/event"
)

var snapshotKeys = []string{
	"fingerprints", "scrollMessages", "forceMessages",
	"userBlocks", "userUpdates", "packageUpdates",
}

// Normalize parses one raw stream payload. The result is empty when the
// payload is malformed or classifies as Unknown (connection handshakes and
// the like). A snapshot payload yields one CombinedSnapshot followed by the
// granular events the refresh trigger and block path consume, in that order.
func Normalize(raw []byte, now time.Time) []event.StreamEvent {
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil
	}

	for _, k := range snapshotKeys {
		if root.Get(k).Exists() {
			return snapshotEvents(root, raw, now)
		}
	}
	return discreteEvents(root, now)
}

func snapshotEvents(root gjson.Result, raw []byte, now time.Time) []event.StreamEvent {
	snap := &event.Snapshot{}

	if arr := root.Get("fingerprints"); arr.Exists() {
		snap.Fingerprints = []event.FingerprintRule{}
		arr.ForEach(func(_, el gjson.Result) bool {
			snap.Fingerprints = append(snap.Fingerprints, parseFingerprint(el, now))
			return true
		})
	}
	if arr := root.Get("scrollMessages"); arr.Exists() {
		snap.ScrollMessages = []event.ScrollRule{}
		arr.ForEach(func(_, el gjson.Result) bool {
			snap.ScrollMessages = append(snap.ScrollMessages, parseScroll(el, now))
			return true
		})
	}
	if arr := root.Get("forceMessages"); arr.Exists() {
		snap.ForceMessages = []event.ForceRule{}
		arr.ForEach(func(_, el gjson.Result) bool {
			snap.ForceMessages = append(snap.ForceMessages, parseForce(el, now))
			return true
		})
	}
	if arr := root.Get("userBlocks"); arr.Exists() {
		snap.UserBlocks = []event.UserBlock{}
		arr.ForEach(func(_, el gjson.Result) bool {
			snap.UserBlocks = append(snap.UserBlocks, parseUserBlock(el))
			return true
		})
	}
	if arr := root.Get("userUpdates"); arr.Exists() {
		snap.UserUpdates = []string{}
		arr.ForEach(func(_, el gjson.Result) bool {
			if s := accountRef(el); s != "" {
				snap.UserUpdates = append(snap.UserUpdates, s)
			}
			return true
		})
	}
	if arr := root.Get("packageUpdates"); arr.Exists() {
		snap.PackageUpdates = []string{}
		seen := map[string]bool{}
		arr.ForEach(func(_, el gjson.Result) bool {
			if s := packageRef(el); s != "" && !seen[s] {
				seen[s] = true
				snap.PackageUpdates = append(snap.PackageUpdates, s)
			}
			return true
		})
	}
	if set := root.Get("settings"); set.IsObject() {
		snap.Settings = &event.Settings{
			GlobalFingerprintEnabled: boolish(pick(set, "globalFingerprintEnabled", "global_fingerprint_enabled", "g"), true),
			PlayerFingerprintEnabled: boolish(pick(set, "playerFingerprintEnabled", "player_fingerprint_enabled", "p"), true),
		}
	}

	id := str(pick(root, "id", "i"))
	if id == "" {
		id = event.SynthesizeID(string(raw), now)
	}

	events := []event.StreamEvent{{
		Kind:     event.KindCombinedSnapshot,
		ID:       id,
		Snapshot: snap,
	}}
	if len(snap.UserBlocks) > 0 {
		events = append(events, event.StreamEvent{
			Kind:   event.KindUserBlock,
			ID:     id,
			Blocks: snap.UserBlocks,
		})
	}
	if len(snap.UserUpdates) > 0 {
		events = append(events, event.StreamEvent{
			Kind:     event.KindEntitlementUserUpdate,
			ID:       id,
			Accounts: snap.UserUpdates,
		})
	}
	if len(snap.PackageUpdates) > 0 {
		events = append(events, event.StreamEvent{
			Kind:     event.KindEntitlementPackageUpdate,
			ID:       id,
			Packages: snap.PackageUpdates,
		})
	}
	return events
}

func discreteEvents(root gjson.Result, now time.Time) []event.StreamEvent {
	body := root
	if p := root.Get("payload"); p.IsObject() {
		body = p
	}

	id := str(pick(body, "id", "i"))
	text := str(pick(body, "message", "m", "text"))
	if id == "" {
		id = event.SynthesizeID(text, now)
	}
	notice := &event.Notice{ID: id, Text: text, ReceivedAt: now}

	// Delete/disable classification wins over the type tag. The "empty
	// message" signal only counts when a message key is actually present,
	// otherwise handshake notices would read as resets.
	if isDisabled(root, body) {
		return []event.StreamEvent{{Kind: event.KindDelete, ID: id, Notice: notice}}
	}

	switch strings.ToLower(str(pick(root, "type", "event"), pick(body, "type", "event"))) {
	case "scroll_message", "scroll":
		return []event.StreamEvent{{Kind: event.KindScrollMessage, ID: id, Notice: notice}}
	case "fingerprint", "finger_print":
		return []event.StreamEvent{{Kind: event.KindFingerprint, ID: id, Notice: notice}}
	default:
		return nil
	}
}

func isDisabled(root, body gjson.Result) bool {
	if strings.EqualFold(str(pick(body, "op"), pick(root, "op")), "delete") {
		return true
	}
	for _, k := range []string{"enabled", "active", "toggle"} {
		if r := pick(body, k); r.Exists() && !boolish(r, true) {
			return true
		}
	}
	if strings.EqualFold(str(pick(body, "status")), "off") {
		return true
	}
	if r := pick(body, "message", "m", "text"); r.Exists() && strings.TrimSpace(r.String()) == "" {
		return true
	}
	return false
}

func parseScroll(el gjson.Result, now time.Time) event.ScrollRule {
	msg := str(pick(el, "message", "m", "text"))
	id := str(pick(el, "id", "i"))
	if id == "" {
		id = event.SynthesizeID(msg, now)
	}
	return event.ScrollRule{
		ID:          id,
		Enabled:     boolish(pick(el, "enabled", "e", "active"), true),
		Message:     msg,
		IntervalSec: num(pick(el, "intervalSec", "interval", "iv")),
		DurationSec: num(pick(el, "durationSec", "duration", "d")),
		RepeatCount: num(pick(el, "repeatCount", "repeat", "r")),
		Scope:       strings.ToLower(str(pick(el, "scope", "s"))),
		Channels:    strList(el, "channels", "channelIds", "channelId", "channel_id"),
	}
}

func parseForce(el gjson.Result, now time.Time) event.ForceRule {
	title := str(pick(el, "title", "t"))
	msg := str(pick(el, "message", "m", "text"))
	id := str(pick(el, "id", "i"))
	if id == "" {
		id = event.SynthesizeID(title+"|"+msg, now)
	}
	scope := strings.ToUpper(str(pick(el, "messageScope", "message_scope", "scope", "s")))
	if scope == "" {
		scope = event.ScopeGlobal
	}
	return event.ForceRule{
		ID:              id,
		Enabled:         boolish(pick(el, "enabled", "e", "active"), true),
		Title:           title,
		Message:         msg,
		Scope:           scope,
		BackgroundColor: str(pick(el, "backgroundColor", "background_color", "bg")),
		TextColor:       str(pick(el, "textColor", "text_color", "fg")),
		TimeoutSec:      num(pick(el, "timeoutSec", "timeout")),
	}
}

func parseFingerprint(el gjson.Result, now time.Time) event.FingerprintRule {
	name := str(pick(el, "displayName", "display_name", "name", "dn"))
	id := str(pick(el, "id", "i"))
	if id == "" {
		id = event.SynthesizeID(name, now)
	}
	return event.FingerprintRule{
		ID:          id,
		Enabled:     boolish(pick(el, "enabled", "e", "active"), true),
		DisplayName: name,
	}
}

func parseUserBlock(el gjson.Result) event.UserBlock {
	return event.UserBlock{
		Username:   str(pick(el, "username", "userName", "user_name", "u")),
		CustomerNo: str(pick(el, "customerNo", "customer_no", "customerNumber", "c")),
		UserID:     str(pick(el, "userId", "user_id", "uid")),
		Blocked:    boolish(pick(el, "isBlocked", "is_blocked", "blocked", "b"), false),
	}
}

func accountRef(el gjson.Result) string {
	if el.IsObject() {
		return str(pick(el, "customerNo", "customer_no", "customerId", "customer_id", "userId", "user_id", "id", "c", "u"))
	}
	return str(el)
}

func packageRef(el gjson.Result) string {
	if el.IsObject() {
		return str(pick(el, "packageId", "package_id", "serviceId", "service_id", "id", "p"))
	}
	return str(el)
}

// pick returns the first existing key, long form first so long form wins
// when both spellings are present.
func pick(el gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := el.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// str stringifies the first non-empty result, trimmed. Numbers pass through
// so numeric ids survive.
func str(rs ...gjson.Result) string {
	for _, r := range rs {
		if !r.Exists() {
			continue
		}
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return ""
}

func num(r gjson.Result) int {
	if !r.Exists() {
		return 0
	}
	return int(r.Int())
}

// boolish coalesces the wire's bool/number/string truthiness. "0", 0, false,
// "false" and "off" all read as disabled.
func boolish(r gjson.Result, def bool) bool {
	if !r.Exists() {
		return def
	}
	switch r.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return r.Int() != 0
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(r.String())) {
		case "false", "0", "off", "no":
			return false
		case "true", "1", "on", "yes":
			return true
		}
		return def
	default:
		return def
	}
}

func strList(el gjson.Result, keys ...string) []string {
	r := pick(el, keys...)
	if !r.Exists() {
		return nil
	}
	var out []string
	if r.IsArray() {
		r.ForEach(func(_, v gjson.Result) bool {
			if s := str(v); s != "" {
				out = append(out, s)
			}
			return true
		})
		return out
	}
	if s := str(r); s != "" {
		out = append(out, s)
	}
	return out
}

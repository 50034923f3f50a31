// Package event holds the canonical records the engine passes around: the
// normalized stream event union, the overlay rule types carried by combined
// snapshots, and the session identity used for targeting.
package event

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

type Kind string

const (
	KindUnknown                  Kind = "Unknown"
	KindCombinedSnapshot         Kind = "CombinedSnapshot"
	KindDelete                   Kind = "Delete"
	KindScrollMessage            Kind = "ScrollMessage"
	KindForceMessage             Kind = "ForceMessage"
	KindFingerprint              Kind = "Fingerprint"
	KindUserBlock                Kind = "UserBlock"
	KindEntitlementUserUpdate    Kind = "EntitlementUserUpdate"
	KindEntitlementPackageUpdate Kind = "EntitlementPackageUpdate"
)

// StreamEvent is the normalized unit consumed by the arbiter and the
// entitlement trigger. Exactly one of the payload pointers is set, matching
// Kind. Unknown events never leave the normalizer.
type StreamEvent struct {
	Kind     Kind
	ID       string
	Snapshot *Snapshot  // KindCombinedSnapshot
	Notice   *Notice    // KindScrollMessage, KindFingerprint, KindDelete
	Blocks   []UserBlock // KindUserBlock
	Accounts []string    // KindEntitlementUserUpdate
	Packages []string    // KindEntitlementPackageUpdate
}

// Notice is a discrete single-text message (toast channel).
type Notice struct {
	ID         string
	Text       string
	ReceivedAt time.Time
}

// Snapshot bundles multiple rule-set updates in one stream message. A nil
// slice means the wire payload omitted the key ("no change"); an empty
// non-nil slice means the key was present and empty ("clear all"). That
// distinction is load-bearing, so nothing here may replace nil with empty.
type Snapshot struct {
	Fingerprints   []FingerprintRule
	ScrollMessages []ScrollRule
	ForceMessages  []ForceRule
	UserBlocks     []UserBlock
	UserUpdates    []string
	PackageUpdates []string
	Settings       *Settings
}

// Settings are the snapshot-level toggles. Absence of the whole struct (or
// of a key on the wire) means enabled.
type Settings struct {
	GlobalFingerprintEnabled bool
	PlayerFingerprintEnabled bool
}

// Scope values for force rules. Scroll rules use the lowercase "player" tag.
const (
	ScopeGlobal = "GLOBAL"
	ScopePlayer = "PLAYER"
)

type ScrollRule struct {
	ID          string
	Enabled     bool
	Message     string
	IntervalSec int
	DurationSec int
	RepeatCount int
	Scope       string
	Channels    []string
}

// PlayerScoped reports whether the rule belongs to the player collaborator
// rather than the global overlay set.
func (r ScrollRule) PlayerScoped() bool {
	return strings.EqualFold(r.Scope, "player") || len(r.Channels) > 0
}

type ForceRule struct {
	ID              string
	Enabled         bool
	Title           string
	Message         string
	Scope           string
	BackgroundColor string
	TextColor       string
	TimeoutSec      int
}

type FingerprintRule struct {
	ID          string
	Enabled     bool
	DisplayName string
}

type UserBlock struct {
	Username   string
	CustomerNo string
	UserID     string
	Blocked    bool
}

// ToastItem is one entry of the FIFO toast channel.
type ToastItem struct {
	ID         string
	Text       string
	EnqueuedAt time.Time
}

// Identity is the session identity the stream query and user-block matching
// are derived from. Unresolvable fields stay empty.
type Identity struct {
	DeviceID   string
	UserID     string
	Username   string
	CustomerNo string
	PackageID  string
	AppVersion string
	Region     string
}

// Matches reports whether a block entry targets this identity. Matching
// prefers username, then customer number, then user id.
func (id Identity) Matches(b UserBlock) bool {
	if b.Username != "" && id.Username != "" {
		return b.Username == id.Username
	}
	if b.CustomerNo != "" && id.CustomerNo != "" {
		return b.CustomerNo == id.CustomerNo
	}
	if b.UserID != "" && id.UserID != "" {
		return b.UserID == id.UserID
	}
	return false
}

// SynthesizeID builds a stable-enough id for payloads that carry none: a
// hash of the content plus arrival time.
func SynthesizeID(content string, at time.Time) string {
	h := fnv.New64a()
	h.Write([]byte(content))
	fmt.Fprintf(h, "|%d", at.UnixNano())
	return fmt.Sprintf("evt-%016x", h.Sum64())
}

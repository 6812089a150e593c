// Package model defines the data types shared by the state store, lock
// manager, fuse engine, session tracker, and RPC server.
package model

import (
	"strconv"
	"time"
)

// SessionStatus is the daemon's view of a tracked session's lifecycle.
type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusStopped SessionStatus = "stopped"
	StatusIdle    SessionStatus = "idle"
)

// LaunchRecord is what the daemon persists about a session it launched
// or has otherwise adopted into tracking.
type LaunchRecord struct {
	ID               string                 `json:"id"`
	Adapter          string                 `json:"adapter"`
	Status           SessionStatus          `json:"status"`
	StartedAt        time.Time              `json:"startedAt"`
	StoppedAt        *time.Time             `json:"stoppedAt,omitempty"`
	PID              int                    `json:"pid,omitempty"`
	WrapperPID       int                    `json:"wrapperPid,omitempty"`
	ProcessStartTime string                 `json:"processStartTime,omitempty"`
	Cwd              string                 `json:"cwd"`
	Model            string                 `json:"model,omitempty"`
	Prompt           string                 `json:"prompt,omitempty"`
	Spec             string                 `json:"spec,omitempty"`
	Group            string                 `json:"group,omitempty"`
	Meta             map[string]interface{} `json:"meta,omitempty"`
}

// IsPendingID reports whether id has the pending-<pid> placeholder shape.
func IsPendingID(id string) bool {
	return len(id) > len(pendingPrefix) && id[:len(pendingPrefix)] == pendingPrefix
}

const pendingPrefix = "pending-"

// PendingID formats the placeholder id assigned before a tool reports a
// stable uuid.
func PendingID(pid int) string {
	return pendingPrefix + strconv.Itoa(pid)
}

// DiscoveredSession is what an adapter returns from its on-disk scan.
// Ephemeral — the core never persists these directly.
type DiscoveredSession struct {
	ID               string                 `json:"id"`
	Adapter          string                 `json:"adapter"`
	Status           SessionStatus          `json:"status"`
	Cwd              string                 `json:"cwd,omitempty"`
	Model            string                 `json:"model,omitempty"`
	StartedAt        time.Time              `json:"startedAt"`
	StoppedAt        *time.Time             `json:"stoppedAt,omitempty"`
	PID              int                    `json:"pid,omitempty"`
	ProcessStartTime string                 `json:"processStartTime,omitempty"`
	Prompt           string                 `json:"prompt,omitempty"`
	TokensIn         int64                  `json:"tokensIn,omitempty"`
	TokensOut        int64                  `json:"tokensOut,omitempty"`
	Cost             float64                `json:"cost,omitempty"`
	NativeMetadata   map[string]interface{} `json:"nativeMetadata,omitempty"`
}

// EnrichedSession is the merge of a DiscoveredSession with a matching
// LaunchRecord. This is what session.list returns.
type EnrichedSession struct {
	ID        string                 `json:"id"`
	Adapter   string                 `json:"adapter"`
	Status    SessionStatus          `json:"status"`
	Cwd       string                 `json:"cwd,omitempty"`
	Model     string                 `json:"model,omitempty"`
	StartedAt time.Time              `json:"startedAt"`
	StoppedAt *time.Time             `json:"stoppedAt,omitempty"`
	PID       int                    `json:"pid,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
	TokensIn  int64                  `json:"tokensIn,omitempty"`
	TokensOut int64                  `json:"tokensOut,omitempty"`
	Cost      float64                `json:"cost,omitempty"`
	Spec      string                 `json:"spec,omitempty"`
	Group     string                 `json:"group,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	// InGrace marks a synthesized entry derived from a LaunchRecord still
	// inside its post-launch grace window, not yet corroborated by the
	// adapter's own discover().
	InGrace bool `json:"inGrace,omitempty"`
}

// LockType distinguishes auto-locks (session lifecycle owned) from
// manual locks (explicit RPC owned).
type LockType string

const (
	LockAuto   LockType = "auto"
	LockManual LockType = "manual"
)

// Lock is keyed by canonicalized absolute directory path in the store.
type Lock struct {
	Directory string    `json:"directory"`
	Type      LockType  `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	LockedBy  string    `json:"lockedBy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	LockedAt  time.Time `json:"lockedAt"`
}

// FuseTimer is a persistent one-shot timer keyed by directory.
type FuseTimer struct {
	Directory   string    `json:"directory"`
	ClusterName string    `json:"clusterName,omitempty"`
	Branch      string    `json:"branch,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
	SessionID   string    `json:"sessionId"`
	TTLMs       int64     `json:"ttlMs"`
	OnExpire    string    `json:"onExpire,omitempty"`
	Label       string    `json:"label,omitempty"`
}

// PersistentDocument is the single JSON file under the config directory
// holding everything the daemon must survive a restart with.
type PersistentDocument struct {
	Version  int                     `json:"version"`
	Launches map[string]LaunchRecord `json:"launches"`
	Locks    map[string]Lock         `json:"locks"`
	Fuses    map[string]FuseTimer    `json:"fuses"`
}

// CurrentDocumentVersion is written by NewDocument and checked on load.
const CurrentDocumentVersion = 1

// NewDocument returns an empty, correctly versioned document.
func NewDocument() *PersistentDocument {
	return &PersistentDocument{
		Version:  CurrentDocumentVersion,
		Launches: make(map[string]LaunchRecord),
		Locks:    make(map[string]Lock),
		Fuses:    make(map[string]FuseTimer),
	}
}

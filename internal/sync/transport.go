// Package sync is the publish/subscribe channel that propagates member
// directory and attendance ledger changes to every device in a family
// group. The transport is a capability interface with two
// implementations behind the same contract: a redis-backed push
// transport and a polling fallback. Consumers never learn which one is
// active.
package sync

import (
	"context"
	"time"
)

// Kind identifies which collection an event refers to.
type Kind string

const (
	KindMembers    Kind = "members"
	KindAttendance Kind = "attendance"
)

// Event is a change notification for one family's collection.
// Events carry no payload: subscribers re-read the full snapshot from
// the store, so a lost or coalesced event costs freshness, not
// correctness.
type Event struct {
	FamilyID   string    `json:"family_id"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Handler receives events for one subscription.
type Handler func(Event)

// UnsubscribeFunc cancels one subscription. Safe to call more than once.
type UnsubscribeFunc func()

// Transport delivers events between devices in a family group.
type Transport interface {
	// Publish sends a change notification to all subscribers.
	Publish(ctx context.Context, ev Event) error
	// Subscribe delivers events for (familyID, kind) until the returned
	// function is called.
	Subscribe(familyID string, kind Kind, h Handler) (UnsubscribeFunc, error)
	// Connected reports whether the transport can currently reach its
	// backend. Polling transports are always connected.
	Connected() bool
	// Name identifies the transport implementation.
	Name() string
	Close() error
}

// channelName is the wire channel for a family's collection stream.
func channelName(familyID string, kind Kind) string {
	return "mealsync:" + familyID + ":" + string(kind)
}

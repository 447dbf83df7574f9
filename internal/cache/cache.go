// Package cache is the device-local durable key-value blob store. It
// remembers the authenticated member id across restarts, buffers writes
// made while offline for later replay, and persists first-launch flags.
// Keys are namespaced by record type and family id.
package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

// Cache is a durable KV blob store. Values are opaque byte documents.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// ScanKeys returns all keys with the given prefix.
	ScanKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// DeviceMemberKey stores the member id the device authenticated as.
func DeviceMemberKey() string { return "device:member_id" }

// FirstLaunchKey stores onboarding flags.
func FirstLaunchKey(flag string) string { return "flag:" + flag }

// SnapshotKey stores the last-known-good snapshot for a collection,
// used as the read fallback when the shared store is unreachable.
func SnapshotKey(familyID, kind string) string {
	return fmt.Sprintf("snapshot:%s:%s", familyID, kind)
}

// OfflinePrefix is the key prefix of a family's buffered offline writes.
func OfflinePrefix(familyID string) string {
	return fmt.Sprintf("offline:%s:", familyID)
}

// OfflineKey buffers one record written while offline, keyed by record
// kind and id so replaying stays last-write-wins per document.
func OfflineKey(familyID, kind, id string) string {
	return OfflinePrefix(familyID) + kind + ":" + id
}

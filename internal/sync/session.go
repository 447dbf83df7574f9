package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/mealsync/mealsync/internal/cache"
	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/storage"
)

// Callbacks receive fresh collection snapshots whenever a change event
// arrives. A nil callback skips that collection.
type Callbacks struct {
	OnMembers    func([]*domain.FamilyMember)
	OnAttendance func([]*domain.AttendanceEntry)
}

// Manager owns the device's sync lifecycle. A device follows at most
// one family group at a time, so starting a new session tears down the
// previous one first.
type Manager struct {
	transport Transport
	store     storage.Storage
	cache     cache.Cache
	logger    *zap.Logger

	mu     stdsync.Mutex
	active *Session
}

// NewManager creates a sync manager on the given transport and stores.
func NewManager(transport Transport, store storage.Storage, c cache.Cache, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{transport: transport, store: store, cache: c, logger: logger}
}

// StartSync subscribes to a family group's member and attendance
// streams and delivers an initial snapshot of each. Any previously
// active session is cleaned up first.
func (m *Manager) StartSync(ctx context.Context, familyID string, cb Callbacks) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.Cleanup()
		m.active = nil
	}

	s := &Session{
		familyID:  familyID,
		transport: m.transport,
		store:     m.store,
		cache:     m.cache,
		logger:    m.logger.With(zap.String("family_id", familyID)),
		cb:        cb,
	}

	unsubMembers, err := m.transport.Subscribe(familyID, KindMembers, func(Event) {
		s.refreshMembers(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing to member changes: %v", domain.ErrSyncTransport, err)
	}
	unsubAttendance, err := m.transport.Subscribe(familyID, KindAttendance, func(Event) {
		s.refreshAttendance(context.Background())
	})
	if err != nil {
		unsubMembers()
		return nil, fmt.Errorf("%w: subscribing to attendance changes: %v", domain.ErrSyncTransport, err)
	}
	s.unsubs = []UnsubscribeFunc{unsubMembers, unsubAttendance}

	s.refreshMembers(ctx)
	s.refreshAttendance(ctx)

	m.active = s
	m.logger.Info("sync session started",
		zap.String("family_id", familyID),
		zap.String("transport", m.transport.Name()))
	return s, nil
}

// StopSync tears down the active session, if any.
func (m *Manager) StopSync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Cleanup()
		m.active = nil
	}
}

// Active returns the current session, or nil when none is running.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Broadcast publishes a change notification after a server-side
// mutation. Delivery is best effort: subscribers on a polling transport
// catch up on their next tick anyway.
func (m *Manager) Broadcast(ctx context.Context, familyID string, kind Kind) {
	ev := Event{FamilyID: familyID, Kind: kind, OccurredAt: time.Now()}
	if err := m.transport.Publish(ctx, ev); err != nil {
		m.logger.Warn("publishing change event",
			zap.String("family_id", familyID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// Session is one device's live view of a family group. Writes made
// while the transport is disconnected are buffered in the local cache
// and replayed by SyncOfflineData.
type Session struct {
	familyID  string
	transport Transport
	store     storage.Storage
	cache     cache.Cache
	logger    *zap.Logger
	cb        Callbacks

	mu       stdsync.Mutex
	lastSync time.Time
	unsubs   []UnsubscribeFunc
	cleaned  bool
}

// FamilyID returns the group this session follows.
func (s *Session) FamilyID() string { return s.familyID }

// Connected reports whether the underlying transport can reach its
// backend right now.
func (s *Session) Connected() bool { return s.transport.Connected() }

// TransportName identifies the active transport implementation.
func (s *Session) TransportName() string { return s.transport.Name() }

// LastSyncTime returns when this session last exchanged data, zero if
// never.
func (s *Session) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()
}

// SaveMember writes a member document. When the transport is offline
// the write lands in the local buffer and reports success; it reaches
// the shared store on the next SyncOfflineData.
func (s *Session) SaveMember(ctx context.Context, m *domain.FamilyMember) error {
	if !s.transport.Connected() {
		return s.buffer(ctx, KindMembers, m.ID, m)
	}
	if err := upsertMember(ctx, s.store, m); err != nil {
		return fmt.Errorf("%w: saving member: %v", domain.ErrSyncTransport, err)
	}
	s.publish(ctx, KindMembers)
	s.touch()
	return nil
}

// SaveAttendance writes an attendance entry as a whole document, so
// concurrent writers resolve last-write-wins. Offline writes are
// buffered like SaveMember.
func (s *Session) SaveAttendance(ctx context.Context, e *domain.AttendanceEntry) error {
	if !s.transport.Connected() {
		return s.buffer(ctx, KindAttendance, e.ID, e)
	}
	if err := s.store.UpsertAttendance(ctx, e); err != nil {
		return fmt.Errorf("%w: saving attendance: %v", domain.ErrSyncTransport, err)
	}
	s.publish(ctx, KindAttendance)
	s.touch()
	return nil
}

// SyncOfflineData replays writes buffered while offline into the
// shared store, last-write-wins per document, and returns how many were
// applied. Records that fail to replay stay buffered for the next
// attempt.
func (s *Session) SyncOfflineData(ctx context.Context) (int, error) {
	prefix := cache.OfflinePrefix(s.familyID)
	keys, err := s.cache.ScanKeys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("scanning offline buffer: %w", err)
	}

	applied := 0
	kinds := make(map[Kind]bool)
	for _, key := range keys {
		value, err := s.cache.Get(ctx, key)
		if err != nil {
			if errors.Is(err, cache.ErrMiss) {
				continue
			}
			return applied, fmt.Errorf("reading offline record %s: %w", key, err)
		}

		kind, ok := offlineKind(strings.TrimPrefix(key, prefix))
		if !ok {
			s.logger.Warn("dropping unrecognized offline record", zap.String("key", key))
			s.cache.Delete(ctx, key)
			continue
		}

		if err := s.replay(ctx, kind, value); err != nil {
			return applied, fmt.Errorf("%w: replaying offline record %s: %v", domain.ErrSyncTransport, key, err)
		}
		if err := s.cache.Delete(ctx, key); err != nil {
			return applied, fmt.Errorf("clearing offline record %s: %w", key, err)
		}
		kinds[kind] = true
		applied++
	}

	for kind := range kinds {
		s.publish(ctx, kind)
	}
	if applied > 0 {
		s.touch()
		s.logger.Info("replayed offline writes", zap.Int("count", applied))
	}
	return applied, nil
}

// Cleanup releases the session's subscriptions. Safe to call more than
// once.
func (s *Session) Cleanup() {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return
	}
	s.cleaned = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	s.logger.Info("sync session stopped")
}

func (s *Session) refreshMembers(ctx context.Context) {
	members, err := s.store.ListMembers(ctx, s.familyID)
	if err != nil {
		s.logger.Warn("reading member snapshot, falling back to cache", zap.Error(err))
		if s.cb.OnMembers != nil {
			if cached, ok := snapshotFromCache[[]*domain.FamilyMember](ctx, s.cache, s.familyID, KindMembers); ok {
				s.cb.OnMembers(cached)
			}
		}
		return
	}
	s.cacheSnapshot(ctx, KindMembers, members)
	if s.cb.OnMembers != nil {
		s.cb.OnMembers(members)
	}
	s.touch()
}

func (s *Session) refreshAttendance(ctx context.Context) {
	entries, err := s.store.ListAttendance(ctx, s.familyID, "")
	if err != nil {
		s.logger.Warn("reading attendance snapshot, falling back to cache", zap.Error(err))
		if s.cb.OnAttendance != nil {
			if cached, ok := snapshotFromCache[[]*domain.AttendanceEntry](ctx, s.cache, s.familyID, KindAttendance); ok {
				s.cb.OnAttendance(cached)
			}
		}
		return
	}
	s.cacheSnapshot(ctx, KindAttendance, entries)
	if s.cb.OnAttendance != nil {
		s.cb.OnAttendance(entries)
	}
	s.touch()
}

func (s *Session) cacheSnapshot(ctx context.Context, kind Kind, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.SnapshotKey(s.familyID, string(kind)), payload); err != nil {
		s.logger.Debug("caching snapshot", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Session) buffer(ctx context.Context, kind Kind, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding offline record: %w", err)
	}
	key := cache.OfflineKey(s.familyID, string(kind), id)
	if err := s.cache.Set(ctx, key, payload); err != nil {
		return fmt.Errorf("buffering offline record: %w", err)
	}
	s.logger.Info("buffered offline write",
		zap.String("kind", string(kind)),
		zap.String("id", id))
	return nil
}

func (s *Session) replay(ctx context.Context, kind Kind, payload []byte) error {
	switch kind {
	case KindMembers:
		var m domain.FamilyMember
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		return upsertMember(ctx, s.store, &m)
	case KindAttendance:
		var e domain.AttendanceEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return err
		}
		return s.store.UpsertAttendance(ctx, &e)
	}
	return fmt.Errorf("unknown record kind %q", kind)
}

func (s *Session) publish(ctx context.Context, kind Kind) {
	ev := Event{FamilyID: s.familyID, Kind: kind, OccurredAt: time.Now()}
	if err := s.transport.Publish(ctx, ev); err != nil {
		s.logger.Warn("publishing change event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func snapshotFromCache[T any](ctx context.Context, c cache.Cache, familyID string, kind Kind) (T, bool) {
	var snapshot T
	payload, err := c.Get(ctx, cache.SnapshotKey(familyID, string(kind)))
	if err != nil {
		return snapshot, false
	}
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return snapshot, false
	}
	return snapshot, true
}

func upsertMember(ctx context.Context, store storage.Storage, m *domain.FamilyMember) error {
	err := store.UpdateMember(ctx, m)
	if errors.Is(err, domain.ErrNotFound) {
		return store.CreateMember(ctx, m)
	}
	return err
}

// offlineKind parses the "{kind}:{id}" tail of an offline buffer key.
func offlineKind(tail string) (Kind, bool) {
	i := strings.IndexByte(tail, ':')
	if i < 0 {
		return "", false
	}
	switch k := Kind(tail[:i]); k {
	case KindMembers, KindAttendance:
		return k, true
	}
	return "", false
}

package sync

import (
	"context"
	"sync"
	"time"
)

// Default poll periods when push delivery is unavailable.
const (
	DefaultMembersPollEvery    = 10 * time.Second
	DefaultAttendancePollEvery = 5 * time.Second
)

// pollSub is one ticking subscription.
type pollSub struct {
	stop chan struct{}
	once sync.Once
}

func (s *pollSub) cancel() {
	s.once.Do(func() { close(s.stop) })
}

// PollTransport is the fallback transport for environments without a
// push backend. Each subscription ticks on a bounded interval and the
// subscriber re-reads its snapshot; remote writes become visible within
// one poll period. Publish is a no-op for the same reason.
type PollTransport struct {
	membersEvery    time.Duration
	attendanceEvery time.Duration

	mu     sync.Mutex
	subs   map[*pollSub]struct{}
	closed bool
}

// NewPollTransport creates a polling transport. Non-positive intervals
// fall back to the defaults.
func NewPollTransport(membersEvery, attendanceEvery time.Duration) *PollTransport {
	if membersEvery <= 0 {
		membersEvery = DefaultMembersPollEvery
	}
	if attendanceEvery <= 0 {
		attendanceEvery = DefaultAttendancePollEvery
	}
	return &PollTransport{
		membersEvery:    membersEvery,
		attendanceEvery: attendanceEvery,
		subs:            make(map[*pollSub]struct{}),
	}
}

func (t *PollTransport) Name() string { return "poll" }

// Publish is a no-op: pollers see the change on their next tick.
func (t *PollTransport) Publish(ctx context.Context, ev Event) error { return nil }

func (t *PollTransport) Subscribe(familyID string, kind Kind, h Handler) (UnsubscribeFunc, error) {
	every := t.attendanceEvery
	if kind == KindMembers {
		every = t.membersEvery
	}

	sub := &pollSub{stop: make(chan struct{})}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return func() {}, nil
	}
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-sub.stop:
				return
			case now := <-ticker.C:
				h(Event{FamilyID: familyID, Kind: kind, OccurredAt: now})
			}
		}
	}()

	return func() {
		sub.cancel()
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}, nil
}

// Connected is always true: polling needs no live backend link.
func (t *PollTransport) Connected() bool { return true }

func (t *PollTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for sub := range subs {
		sub.cancel()
	}
	return nil
}

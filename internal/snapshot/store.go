// Package snapshot holds the latest published GPU telemetry.
package snapshot

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/worldland/gpumon/internal/domain"
	apperrors "github.com/worldland/gpumon/internal/errors"
)

// Store publishes whole Snapshot values. Readers load an atomic pointer and
// never observe a partial update. Writes are serialized by mu so each
// replace derives from the previous value.
type Store struct {
	current atomic.Pointer[domain.Snapshot]

	mu     sync.Mutex
	subs   map[int]chan domain.Snapshot
	nextID int
}

// NewStore creates a store holding an empty snapshot with the given active flag.
func NewStore(active bool) *Store {
	s := &Store{subs: make(map[int]chan domain.Snapshot)}
	s.current.Store(&domain.Snapshot{Active: active})
	return s
}

// Current returns the latest snapshot. The GPU slice is a copy.
func (s *Store) Current() domain.Snapshot {
	snap := *s.current.Load()
	snap.GPUs = slices.Clone(snap.GPUs)
	return snap
}

// Publish replaces the telemetry with a successful acquisition and clears the last error.
func (s *Store) Publish(acq domain.Acquisition, at time.Time) domain.Snapshot {
	return s.replace(func(next *domain.Snapshot) {
		next.GPUs = slices.Clone(acq.GPUs)
		next.Source = acq.Source
		next.CapturedAt = at
		next.LastError = ""
		next.LastErrorCode = ""
		next.LastErrorAt = time.Time{}
	})
}

// RecordError notes a failed acquisition. The last good telemetry and its
// capture time are kept.
func (s *Store) RecordError(err error, at time.Time) domain.Snapshot {
	return s.replace(func(next *domain.Snapshot) {
		next.LastError = err.Error()
		next.LastErrorCode = string(apperrors.RootCode(err))
		next.LastErrorAt = at
	})
}

// SetActive records whether monitoring is enabled. Telemetry is kept either way.
func (s *Store) SetActive(active bool) domain.Snapshot {
	return s.replace(func(next *domain.Snapshot) {
		next.Active = active
	})
}

func (s *Store) replace(mutate func(next *domain.Snapshot)) domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()
	mutate(&next)
	next.Sequence++
	s.current.Store(&next)

	for _, ch := range s.subs {
		deliver(ch, next)
	}
	return next
}

// deliver sends without blocking. A full channel drops its oldest value so the
// subscriber always ends up with the latest snapshot.
func deliver(ch chan domain.Snapshot, snap domain.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel that receives every replaced snapshot, and a
// function that unsubscribes and closes the channel. buffer below 1 is raised to 1.
func (s *Store) Subscribe(buffer int) (<-chan domain.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Snapshot, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

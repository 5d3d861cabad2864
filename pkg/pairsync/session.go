package pairsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/workflow"
)

// Mutator commits a phase payload on behalf of an actor.
type Mutator interface {
	MutateAs(ctx context.Context, partyID string, phaseID int, payload workflow.Payload, actor string) (workflow.Phase, error)
}

func commitKey(partyID string, phaseID int) string {
	return fmt.Sprintf("commit/%s/%d", partyID, phaseID)
}

// Session is one party's data-entry session. Edits are committed after the
// local debounce; a newer edit of the same phase replaces a pending one.
type Session struct {
	ID      string
	PartyID string
	Actor   string
	Opened  time.Time

	manager *Sessions

	mu      sync.Mutex
	closed  bool
	lastErr error
}

// Edit schedules payload to be committed to phaseID.
func (s *Session) Edit(phaseID int, payload workflow.Payload) error {
	if phaseID < 1 || phaseID > workflow.PhaseCount {
		return errs.Validation("phase %d out of range", phaseID)
	}
	if payload == nil {
		return errs.Validation("payload is required")
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s: %w", s.ID, errs.ErrNotFound)
	}
	m := s.manager
	if m.coordinator != nil {
		m.coordinator.CancelPhase(s.PartyID, phaseID)
	}
	m.scheduler.Schedule(commitKey(s.PartyID, phaseID), m.delay, func(ctx context.Context) {
		_, err := m.store.MutateAs(ctx, s.PartyID, phaseID, payload, s.Actor)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		if err != nil {
			logger.ForParty(s.PartyID, phaseID).WithError(err).WithField("session_id", s.ID).Error("Debounced commit failed")
		}
	})
	return nil
}

// Err reports the outcome of the most recent asynchronous commit.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close cancels the party's pending commits and pending propagations.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	m := s.manager
	dropped := m.scheduler.CancelPrefix("commit/" + s.PartyID + "/")
	if m.coordinator != nil {
		dropped += m.coordinator.CancelParty(s.PartyID)
	}
	m.remove(s.ID)
	logger.ForParty(s.PartyID, 0).WithFields(map[string]interface{}{
		"session_id": s.ID,
		"dropped":    dropped,
	}).Info("Session closed")
}

// Sessions tracks open data-entry sessions.
type Sessions struct {
	store       Mutator
	scheduler   *Scheduler
	coordinator *Coordinator
	delay       time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessions builds a session registry. coordinator may be nil when
// propagation happens out of process.
func NewSessions(store Mutator, scheduler *Scheduler, coordinator *Coordinator, delay time.Duration) *Sessions {
	return &Sessions{
		store:       store,
		scheduler:   scheduler,
		coordinator: coordinator,
		delay:       delay,
		sessions:    make(map[string]*Session),
	}
}

func (m *Sessions) Open(partyID, actor string) *Session {
	s := &Session{
		ID:      uuid.New().String(),
		PartyID: partyID,
		Actor:   actor,
		Opened:  time.Now().UTC(),
		manager: m,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Sessions) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
	}
	return s, nil
}

func (m *Sessions) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Close()
	return nil
}

func (m *Sessions) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/recordstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Parties resolves party demographics for applicability and role.
type Parties interface {
	Party(ctx context.Context, id string) (models.Party, error)
}

// Origin records whether a commit came from the party's own data entry or
// from partner synchronization.
type Origin string

const (
	OriginLocal Origin = "local"
	OriginSync  Origin = "sync"
)

// CommitEvent describes a persisted phase change.
type CommitEvent struct {
	PartyID  string
	Role     models.Role
	PhaseID  int
	Kind     Kind
	Status   Status
	Progress int
	Payload  Payload
	Origin   Origin
	Actor    string
	At       time.Time
}

type Observer interface {
	PhaseCommitted(ctx context.Context, ev CommitEvent)
}

type ObserverFunc func(ctx context.Context, ev CommitEvent)

func (f ObserverFunc) PhaseCommitted(ctx context.Context, ev CommitEvent) {
	f(ctx, ev)
}

func WorkflowKey(partyID string) string {
	return "workflows/" + partyID
}

// Store owns every party's phase list and applies mutations through the
// calculator. Read-modify-write cycles for one party are serialized
// in-process; across processes the last write wins.
type Store struct {
	records   recordstore.Store
	parties   Parties
	templates *Templates
	tracer    trace.Tracer
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	obsMu     sync.RWMutex
	observers []Observer
}

func NewStore(records recordstore.Store, parties Parties, templates *Templates) *Store {
	return &Store{
		records:   records,
		parties:   parties,
		templates: templates,
		tracer:    otel.Tracer("github.com/transplantflow/platform/pkg/workflow"),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) Templates() *Templates {
	return s.templates
}

// Subscribe registers an observer notified after every commit.
func (s *Store) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Store) notify(ctx context.Context, ev CommitEvent) {
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.PhaseCommitted(ctx, ev)
	}
}

func (s *Store) partyLock(partyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[partyID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[partyID] = l
	}
	return l
}

func (s *Store) startSpan(ctx context.Context, name, partyID string, phaseID int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("party.id", partyID)}
	if phaseID > 0 {
		attrs = append(attrs, attribute.Int("phase.id", phaseID))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Get loads a party's workflow, creating it from the template on first
// access. Under open gating every locked phase is made available and the
// result persisted.
func (s *Store) Get(ctx context.Context, partyID string) (w Workflow, err error) {
	ctx, span := s.startSpan(ctx, "workflow.Get", partyID, 0)
	defer func() { endSpan(span, err) }()

	party, err := s.parties.Party(ctx, partyID)
	if err != nil {
		return Workflow{}, err
	}

	l := s.partyLock(partyID)
	l.Lock()
	defer l.Unlock()

	w, dirty, err := s.load(ctx, party)
	if err != nil {
		return Workflow{}, err
	}
	if s.templates.Unlock(&w) {
		dirty = true
	}
	if dirty {
		if err := s.save(ctx, w); err != nil {
			return Workflow{}, err
		}
	}
	return w, nil
}

// LoadForSync returns the hydrated workflow without the unlock pass and
// without persisting, so a partner's locked phases stay locked.
func (s *Store) LoadForSync(ctx context.Context, partyID string) (Workflow, error) {
	party, err := s.parties.Party(ctx, partyID)
	if err != nil {
		return Workflow{}, err
	}
	w, _, err := s.load(ctx, party)
	return w, err
}

// load reads and hydrates the record. dirty reports that the workflow did
// not exist and has to be written.
func (s *Store) load(ctx context.Context, party models.Party) (Workflow, bool, error) {
	raw, err := s.records.Get(ctx, WorkflowKey(party.ID))
	if errors.Is(err, errs.ErrNotFound) {
		logger.ForParty(party.ID, 0).Info("Instantiating workflow from template")
		return s.templates.Instantiate(party), true, nil
	}
	if err != nil {
		return Workflow{}, false, err
	}
	w, err := Hydrate(raw, s.templates.Template(party.Role, party.ID))
	if err != nil {
		return Workflow{}, false, fmt.Errorf("workflow %s: %w", party.ID, err)
	}
	return w, false, nil
}

func (s *Store) save(ctx context.Context, w Workflow) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", w.PartyID, err)
	}
	return s.records.Set(ctx, WorkflowKey(w.PartyID), raw)
}

// Mutate replaces one phase's payload, recomputes it and persists the whole
// phase list.
func (s *Store) Mutate(ctx context.Context, partyID string, phaseID int, payload Payload) (Phase, error) {
	return s.MutateAs(ctx, partyID, phaseID, payload, "")
}

func (s *Store) MutateAs(ctx context.Context, partyID string, phaseID int, payload Payload, actor string) (p Phase, err error) {
	ctx, span := s.startSpan(ctx, "workflow.Mutate", partyID, phaseID)
	defer func() { endSpan(span, err) }()

	party, err := s.parties.Party(ctx, partyID)
	if err != nil {
		return Phase{}, err
	}
	kind, err := KindFor(party.Role, phaseID)
	if err != nil {
		return Phase{}, errs.Validation("%v", err)
	}
	if payload == nil || payload.Kind() != kind {
		return Phase{}, errs.Validation("phase %d of a %s takes a %s payload", phaseID, party.Role, kind)
	}
	if err := payload.Validate(); err != nil {
		return Phase{}, err
	}

	p, ev, err := s.commit(ctx, party, phaseID, func(w *Workflow, current *Phase) (bool, error) {
		s.templates.Unlock(w)
		return true, s.replacePayload(party, current, payload)
	})
	if err != nil {
		return Phase{}, err
	}
	ev.Origin = OriginLocal
	ev.Actor = actor
	s.notify(ctx, ev)

	logger.ForParty(partyID, phaseID).WithField("progress", p.Progress).Debug("Phase committed")
	return p, nil
}

// ApplyPartnerPayload overwrites a shared phase's payload in partyID's
// workflow with payload when they differ. The phase status is recomputed
// against the partner's own lock state. It reports whether a write happened.
func (s *Store) ApplyPartnerPayload(ctx context.Context, partyID string, phaseID int, payload Payload) (changed bool, err error) {
	ctx, span := s.startSpan(ctx, "workflow.ApplyPartnerPayload", partyID, phaseID)
	defer func() { endSpan(span, err) }()

	if !IsShared(phaseID) {
		return false, errs.Validation("phase %d is not shared between partners", phaseID)
	}
	party, err := s.parties.Party(ctx, partyID)
	if err != nil {
		return false, err
	}

	_, ev, err := s.commit(ctx, party, phaseID, func(_ *Workflow, current *Phase) (bool, error) {
		if current.Kind != payload.Kind() {
			return false, errs.Validation("phase %d holds %s, got %s", phaseID, current.Kind, payload.Kind())
		}
		same, err := samePayload(current.Payload, payload)
		if err != nil || same {
			return false, err
		}
		return true, s.replacePayload(party, current, payload)
	})
	if err != nil || ev.PartyID == "" {
		return false, err
	}
	ev.Origin = OriginSync
	s.notify(ctx, ev)
	return true, nil
}

// ExemptTest marks a screening test exempt, clearing its value.
func (s *Store) ExemptTest(ctx context.Context, partyID, testID, reason, actor string) (Phase, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Phase{}, errs.Validation("exemption for %q requires a reason", testID)
	}
	party, err := s.parties.Party(ctx, partyID)
	if err != nil {
		return Phase{}, err
	}
	p, ev, err := s.commit(ctx, party, 1, func(_ *Workflow, current *Phase) (bool, error) {
		screening, ok := current.Payload.(*Screening)
		if !ok {
			return false, fmt.Errorf("phase 1 of %s holds %s", partyID, current.Kind)
		}
		for i := range screening.Tests {
			t := &screening.Tests[i]
			if t.ID != testID {
				continue
			}
			t.Value = ""
			t.ConditionalValue = ""
			t.IsExempt = true
			t.ExemptionReason = reason
			t.ExemptionDate = s.now().UTC().Format("2006-01-02")
			t.ExemptedBy = actor
			*current = Calculate(party, *current)
			return true, nil
		}
		return false, fmt.Errorf("test %q: %w", testID, errs.ErrNotFound)
	})
	if err != nil {
		return Phase{}, err
	}
	ev.Origin = OriginLocal
	ev.Actor = actor
	s.notify(ctx, ev)
	return p, nil
}

// commit runs apply against the phase under the party lock and persists
// when it reports a change. The returned event is zero when nothing was
// written.
func (s *Store) commit(ctx context.Context, party models.Party, phaseID int, apply func(w *Workflow, current *Phase) (bool, error)) (Phase, CommitEvent, error) {
	l := s.partyLock(party.ID)
	l.Lock()
	defer l.Unlock()

	w, _, err := s.load(ctx, party)
	if err != nil {
		return Phase{}, CommitEvent{}, err
	}
	current := w.Phase(phaseID)
	if current == nil {
		return Phase{}, CommitEvent{}, fmt.Errorf("phase %d: %w", phaseID, errs.ErrNotFound)
	}
	changed, err := apply(&w, current)
	if err != nil || !changed {
		return *current, CommitEvent{}, err
	}
	if current.Status == StatusCompleted {
		if next := w.Phase(phaseID + 1); next != nil && next.Status == StatusLocked {
			next.Status = StatusAvailable
		}
	}
	if err := s.save(ctx, w); err != nil {
		return Phase{}, CommitEvent{}, err
	}
	return *current, CommitEvent{
		PartyID:  party.ID,
		Role:     party.Role,
		PhaseID:  phaseID,
		Kind:     current.Kind,
		Status:   current.Status,
		Progress: current.Progress,
		Payload:  current.Payload,
		At:       s.now(),
	}, nil
}

func (s *Store) replacePayload(party models.Party, current *Phase, payload Payload) error {
	tmpl, err := s.templates.TemplatePhase(party.Role, current.ID)
	if err != nil {
		return err
	}
	hydrated, err := HydratePayload(payload, tmpl)
	if err != nil {
		return err
	}
	current.Payload = hydrated
	*current = Calculate(party, *current)
	return nil
}

// samePayload compares two payloads by their canonical JSON encoding.
func samePayload(a, b Payload) (bool, error) {
	ra, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ra, rb), nil
}

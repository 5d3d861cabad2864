package pairsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/observability/metrics"
	"github.com/transplantflow/platform/pkg/workflow"
)

// Partners resolves a party's pair partner; "" means unpaired.
type Partners interface {
	Partner(ctx context.Context, partyID string) (string, error)
}

// PartnerWriter applies a shared phase payload to a partner's workflow.
type PartnerWriter interface {
	ApplyPartnerPayload(ctx context.Context, partyID string, phaseID int, payload workflow.Payload) (bool, error)
}

// Coordinator mirrors shared-phase commits into the partner's workflow after
// a debounce. Writes overwrite; there is no conflict detection.
type Coordinator struct {
	writer    PartnerWriter
	partners  Partners
	scheduler *Scheduler
	delay     time.Duration
	metrics   *metrics.Metrics
}

func NewCoordinator(writer PartnerWriter, partners Partners, scheduler *Scheduler, delay time.Duration, m *metrics.Metrics) *Coordinator {
	return &Coordinator{writer: writer, partners: partners, scheduler: scheduler, delay: delay, metrics: m}
}

func syncKey(partyID string, phaseID int) string {
	return fmt.Sprintf("sync/%s/%d", partyID, phaseID)
}

// PhaseCommitted implements workflow.Observer. Only local commits of shared
// phases are propagated, so partner writes never echo back.
func (c *Coordinator) PhaseCommitted(_ context.Context, ev workflow.CommitEvent) {
	if ev.Origin != workflow.OriginLocal || !workflow.IsShared(ev.PhaseID) {
		return
	}
	c.scheduler.Schedule(syncKey(ev.PartyID, ev.PhaseID), c.delay, func(ctx context.Context) {
		_ = c.Propagate(ctx, ev.PartyID, ev.PhaseID, ev.Payload)
	})
}

// CancelPhase drops a pending propagation of partyID's phase. A newer local
// edit supersedes the committed payload it would have pushed.
func (c *Coordinator) CancelPhase(partyID string, phaseID int) bool {
	return c.scheduler.Cancel(syncKey(partyID, phaseID))
}

// CancelParty drops pending propagations originating from partyID.
func (c *Coordinator) CancelParty(partyID string) int {
	return c.scheduler.CancelPrefix("sync/" + partyID + "/")
}

// Propagate pushes payload into the partner of partyID. Failures are logged
// and counted, not retried.
func (c *Coordinator) Propagate(ctx context.Context, partyID string, phaseID int, payload workflow.Payload) error {
	log := logger.ForParty(partyID, phaseID)

	partner, err := c.partners.Partner(ctx, partyID)
	if err != nil {
		c.metrics.IncrementSync("failed")
		log.WithError(err).Error("Partner lookup failed")
		return err
	}
	if partner == "" {
		c.metrics.IncrementSync("unpaired")
		return nil
	}

	changed, err := c.writer.ApplyPartnerPayload(ctx, partner, phaseID, payload)
	if err != nil {
		c.metrics.IncrementSync("failed")
		log.WithError(err).WithField("partner_id", partner).Error("Failed to sync shared phase to partner")
		return err
	}
	if !changed {
		c.metrics.IncrementSync("unchanged")
		return nil
	}
	c.metrics.IncrementSync("applied")
	log.WithField("partner_id", partner).Info("Shared phase synced to partner")
	return nil
}

// HandleEvent schedules propagation for a phase-commit event read from the
// event bus, under the same debounce key as an in-process commit. A burst of
// events for one phase results in a single partner write carrying the last
// payload. A malformed event is returned as an error.
func (c *Coordinator) HandleEvent(ctx context.Context, event models.Event) error {
	if event.Type != models.EventPhaseCommitted {
		return nil
	}
	ev, err := DecodeCommitEvent(event)
	if err != nil {
		return fmt.Errorf("decode event %s: %w", event.ID, err)
	}
	c.PhaseCommitted(ctx, ev)
	return nil
}

// EventData flattens a commit into the event bus payload.
func EventData(ev workflow.CommitEvent) map[string]interface{} {
	return map[string]interface{}{
		"partyId":  ev.PartyID,
		"role":     string(ev.Role),
		"phaseId":  ev.PhaseID,
		"kind":     string(ev.Kind),
		"status":   string(ev.Status),
		"progress": ev.Progress,
		"origin":   string(ev.Origin),
		"actor":    ev.Actor,
		"payload":  ev.Payload,
	}
}

// DecodeCommitEvent reverses EventData after a JSON round trip.
func DecodeCommitEvent(event models.Event) (workflow.CommitEvent, error) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return workflow.CommitEvent{}, err
	}
	var data struct {
		PartyID  string          `json:"partyId"`
		Role     models.Role     `json:"role"`
		PhaseID  int             `json:"phaseId"`
		Kind     workflow.Kind   `json:"kind"`
		Status   workflow.Status `json:"status"`
		Progress int             `json:"progress"`
		Origin   workflow.Origin `json:"origin"`
		Actor    string          `json:"actor"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return workflow.CommitEvent{}, err
	}
	if data.PartyID == "" || data.PhaseID == 0 {
		return workflow.CommitEvent{}, fmt.Errorf("event %s: missing party or phase", event.ID)
	}
	payload, err := workflow.DecodePayload(data.Kind, data.Payload)
	if err != nil {
		return workflow.CommitEvent{}, err
	}
	return workflow.CommitEvent{
		PartyID:  data.PartyID,
		Role:     data.Role,
		PhaseID:  data.PhaseID,
		Kind:     data.Kind,
		Status:   data.Status,
		Progress: data.Progress,
		Payload:  payload,
		Origin:   data.Origin,
		Actor:    data.Actor,
		At:       event.Timestamp,
	}, nil
}

// EventPublisher is satisfied by the Kafka producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

// Publisher returns an observer that forwards local commits to the event bus
// keyed by party, so one party's events stay ordered.
func Publisher(p EventPublisher, source string) workflow.Observer {
	return workflow.ObserverFunc(func(ctx context.Context, ev workflow.CommitEvent) {
		if ev.Origin != workflow.OriginLocal {
			return
		}
		if err := p.PublishEvent(ctx, models.EventPhaseCommitted, source, ev.PartyID, EventData(ev)); err != nil {
			logger.ForParty(ev.PartyID, ev.PhaseID).WithError(err).Error("Failed to publish phase commit")
		}
	})
}

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/recordstore"
)

type partyMap map[string]models.Party

func (m partyMap) Party(_ context.Context, id string) (models.Party, error) {
	p, ok := m[id]
	if !ok {
		return models.Party{}, fmt.Errorf("party %s: %w", id, errs.ErrNotFound)
	}
	return p, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []CommitEvent
}

func (l *eventLog) PhaseCommitted(_ context.Context, ev CommitEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []CommitEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CommitEvent(nil), l.events...)
}

func newTestStore(t *testing.T, gating GatingMode) (*Store, *recordstore.Memory, *eventLog) {
	t.Helper()
	records := recordstore.NewMemory()
	store := NewStore(records, partyMap{testDonor.ID: testDonor, testRecipient.ID: testRecipient}, NewTemplates(DefaultCatalog(), gating))
	log := &eventLog{}
	store.Subscribe(log)
	return store, records, log
}

func TestStoreGetInstantiatesAndPersists(t *testing.T) {
	ctx := context.Background()
	store, records, _ := newTestStore(t, GatingOpen)

	w, err := store.Get(ctx, testDonor.ID)
	require.NoError(t, err)
	require.Len(t, w.Phases, PhaseCount)
	assert.Equal(t, models.RoleDonor, w.Role)

	raw, err := records.Get(ctx, WorkflowKey(testDonor.ID))
	require.NoError(t, err)
	var persisted Workflow
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, KindDonorAssessment, persisted.Phase(2).Kind)
}

func TestStoreGetUnknownParty(t *testing.T) {
	store, _, _ := newTestStore(t, GatingOpen)
	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStoreGetUnlocksPersistedLockedPhases(t *testing.T) {
	ctx := context.Background()
	store, records, _ := newTestStore(t, GatingOpen)
	record := `{"partyId":"r1","phases":[{"id":3,"kind":"consultations","status":"locked","progress":0,"payload":{}}]}`
	require.NoError(t, records.Set(ctx, WorkflowKey(testRecipient.ID), []byte(record)))

	synced, err := store.LoadForSync(ctx, testRecipient.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, synced.Phase(3).Status)

	w, err := store.Get(ctx, testRecipient.ID)
	require.NoError(t, err)
	for _, p := range w.Phases {
		assert.NotEqual(t, StatusLocked, p.Status, "phase %d", p.ID)
	}

	again, err := store.LoadForSync(ctx, testRecipient.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, again.Phase(3).Status, "unlock pass is persisted")
}

func TestStoreMutate(t *testing.T) {
	ctx := context.Background()
	store, _, log := newTestStore(t, GatingOpen)

	p, err := store.Mutate(ctx, testDonor.ID, 4, &LegalClearance{Status: ItemCleared, FileName: "legal.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 100, p.Progress)
	assert.Equal(t, StatusCompleted, p.Status)

	w, err := store.Get(ctx, testDonor.ID)
	require.NoError(t, err)
	assert.Equal(t, ItemCleared, w.Phase(4).Payload.(*LegalClearance).Status)

	events := log.all()
	require.Len(t, events, 1)
	assert.Equal(t, OriginLocal, events[0].Origin)
	assert.Equal(t, 4, events[0].PhaseID)
}

func TestStoreGetKeepsPhaseDataAfterRecordDrift(t *testing.T) {
	ctx := context.Background()
	store, records, _ := newTestStore(t, GatingOpen)

	_, err := store.Mutate(ctx, testDonor.ID, 4, &LegalClearance{Status: ItemCleared, FileName: "consent.pdf", Notes: "signed by notary"})
	require.NoError(t, err)

	raw, err := records.Get(ctx, WorkflowKey(testDonor.ID))
	require.NoError(t, err)
	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	phases := generic["phases"].([]interface{})
	phases[3].(map[string]interface{})["progress"] = 99.5
	raw, err = json.Marshal(generic)
	require.NoError(t, err)
	require.NoError(t, records.Set(ctx, WorkflowKey(testDonor.ID), raw))

	w, err := store.Get(ctx, testDonor.ID)
	require.NoError(t, err)
	legal := w.Phase(4).Payload.(*LegalClearance)
	assert.Equal(t, ItemCleared, legal.Status)
	assert.Equal(t, "consent.pdf", legal.FileName)
	assert.Equal(t, "signed by notary", legal.Notes)
}

func TestStoreMutateRejectsWrongKind(t *testing.T) {
	store, _, log := newTestStore(t, GatingOpen)
	_, err := store.Mutate(context.Background(), testRecipient.ID, 2, &DonorAssessment{})
	assert.True(t, errs.IsValidationError(err))

	_, err = store.Mutate(context.Background(), testRecipient.ID, 9, &LegalClearance{Status: ItemPending})
	assert.True(t, errs.IsValidationError(err))
	assert.Empty(t, log.all())
}

func TestStoreMutateRejectsInvalidPayload(t *testing.T) {
	store, _, _ := newTestStore(t, GatingOpen)
	items := []Consultation{{ID: "rec_nephro", Department: "Nephrology", IsApplicable: true, Status: ItemNotRequired}}
	_, err := store.Mutate(context.Background(), testRecipient.ID, 3, &Consultations{Items: items})
	assert.True(t, errs.IsValidationError(err))
}

func TestStoreMutateUnlocksNextPhaseUnderSequentialGating(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t, GatingSequential)

	w, err := store.Get(ctx, testRecipient.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, w.Phase(2).Status)

	tmpl, err := store.Templates().TemplatePhase(models.RoleRecipient, 1)
	require.NoError(t, err)
	screening := tmpl.Payload.(*Screening)
	for i := range screening.Tests {
		screening.Tests[i].Value = "1"
	}
	p, err := store.Mutate(ctx, testRecipient.ID, 1, screening)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, p.Status)

	w, err = store.Get(ctx, testRecipient.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, w.Phase(2).Status)
	assert.Equal(t, StatusLocked, w.Phase(3).Status)
}

func TestStoreExemptTest(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t, GatingOpen)

	_, err := store.ExemptTest(ctx, testDonor.ID, "hemoglobin", "  ", "dr.lee")
	assert.True(t, errs.IsValidationError(err))

	_, err = store.ExemptTest(ctx, testDonor.ID, "no_such_test", "n/a", "dr.lee")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	p, err := store.ExemptTest(ctx, testDonor.ID, "hemoglobin", "Recent result from referring lab", "dr.lee")
	require.NoError(t, err)
	assert.Greater(t, p.Progress, 0)

	var found bool
	for _, item := range p.Payload.(*Screening).Tests {
		if item.ID == "hemoglobin" {
			found = true
			assert.True(t, item.IsExempt)
			assert.Equal(t, "dr.lee", item.ExemptedBy)
			assert.NotEmpty(t, item.ExemptionDate)
			assert.Empty(t, item.Value)
		}
	}
	assert.True(t, found)
}

func TestStoreApplyPartnerPayload(t *testing.T) {
	ctx := context.Background()
	store, records, log := newTestStore(t, GatingOpen)

	// Recipient's phase 4 is independently locked.
	record := `{"partyId":"r1","phases":[{"id":4,"kind":"legalClearance","status":"locked","progress":0,"payload":{"status":"Pending"}}]}`
	require.NoError(t, records.Set(ctx, WorkflowKey(testRecipient.ID), []byte(record)))

	legal := &LegalClearance{Status: ItemCleared, FileName: "legal.pdf", OfficerName: "K. Rao"}
	changed, err := store.ApplyPartnerPayload(ctx, testRecipient.ID, 4, legal)
	require.NoError(t, err)
	assert.True(t, changed)

	w, err := store.LoadForSync(ctx, testRecipient.ID)
	require.NoError(t, err)
	p := w.Phase(4)
	assert.Equal(t, StatusLocked, p.Status)
	assert.Equal(t, 100, p.Progress)
	assert.Equal(t, "K. Rao", p.Payload.(*LegalClearance).OfficerName)

	changed, err = store.ApplyPartnerPayload(ctx, testRecipient.ID, 4, legal)
	require.NoError(t, err)
	assert.False(t, changed, "identical payload is not rewritten")

	events := log.all()
	require.Len(t, events, 1)
	assert.Equal(t, OriginSync, events[0].Origin)

	_, err = store.ApplyPartnerPayload(ctx, testRecipient.ID, 2, &RecipientAssessment{})
	assert.True(t, errs.IsValidationError(err))
}

func TestStoreSerializesConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	store, _, log := newTestStore(t, GatingOpen)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Mutate(ctx, testDonor.ID, 4, &LegalClearance{Status: ItemInProgress, Notes: fmt.Sprint(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, log.all(), 20)

	w, err := store.Get(ctx, testDonor.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, w.Phase(4).Progress)
}

func TestStoreUnavailable(t *testing.T) {
	store, _, _ := newTestStore(t, GatingOpen)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Get(ctx, testDonor.ID)
	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

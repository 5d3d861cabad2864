// Package registry keeps the parties under evaluation and the donor/recipient
// pairs that link them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/recordstore"
	"github.com/transplantflow/platform/pkg/workflow"
)

const maxAge = 120

type Service struct {
	repo *Repository
	now  func() time.Time

	// mu serializes writes that update the id indexes or check pair membership.
	mu sync.Mutex
}

func NewService(records recordstore.Store) *Service {
	return &Service{repo: NewRepository(records), now: time.Now}
}

func (s *Service) Register(ctx context.Context, req models.RegisterPartyRequest) (models.Party, error) {
	if err := validateParty(req); err != nil {
		return models.Party{}, err
	}
	party := models.Party{
		ID:               uuid.New().String(),
		Name:             strings.TrimSpace(req.Name),
		Role:             req.Role,
		Age:              req.Age,
		Gender:           req.Gender,
		BloodType:        strings.ToUpper(strings.TrimSpace(req.BloodType)),
		ContactNumber:    req.ContactNumber,
		MedicalHistory:   nonNil(req.MedicalHistory),
		Medications:      nonNil(req.Medications),
		Allergies:        nonNil(req.Allergies),
		RegistrationDate: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.SaveParty(ctx, party); err != nil {
		return models.Party{}, err
	}
	logger.ForParty(party.ID, 0).WithField("role", party.Role).Info("Party registered")
	return party, nil
}

func validateParty(req models.RegisterPartyRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errs.Validation("name is required")
	}
	if !req.Role.Valid() {
		return errs.Validation("role must be %s or %s", models.RoleDonor, models.RoleRecipient)
	}
	if req.Age < 0 || req.Age > maxAge {
		return errs.Validation("age must be between 0 and %d", maxAge)
	}
	switch req.Gender {
	case models.GenderMale, models.GenderFemale, models.GenderOther:
	default:
		return errs.Validation("unknown gender %q", req.Gender)
	}
	bloodType := strings.ToUpper(strings.TrimSpace(req.BloodType))
	for _, bt := range models.BloodTypes {
		if bt == bloodType {
			return nil
		}
	}
	return errs.Validation("unknown blood type %q", req.BloodType)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// Party implements workflow.Parties.
func (s *Service) Party(ctx context.Context, id string) (models.Party, error) {
	return s.repo.GetParty(ctx, id)
}

func (s *Service) Parties(ctx context.Context) ([]models.Party, error) {
	return s.repo.ListParties(ctx)
}

func (s *Service) CreatePair(ctx context.Context, req models.CreatePairRequest) (models.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	donor, err := s.repo.GetParty(ctx, req.DonorID)
	if err != nil {
		return models.Pair{}, err
	}
	recipient, err := s.repo.GetParty(ctx, req.RecipientID)
	if err != nil {
		return models.Pair{}, err
	}
	if donor.Role != models.RoleDonor {
		return models.Pair{}, errs.Validation("party %s is not a donor", donor.ID)
	}
	if recipient.Role != models.RoleRecipient {
		return models.Pair{}, errs.Validation("party %s is not a recipient", recipient.ID)
	}

	pairs, err := s.repo.ListPairs(ctx)
	if err != nil {
		return models.Pair{}, err
	}
	for _, p := range pairs {
		if p.Partner(donor.ID) != "" || p.Partner(recipient.ID) != "" {
			return models.Pair{}, fmt.Errorf("party already paired in %s: %w", p.ID, errs.ErrConflict)
		}
	}

	pair := models.Pair{
		ID:                  uuid.New().String(),
		DonorID:             donor.ID,
		RecipientID:         recipient.ID,
		CompatibilityStatus: models.CompatibilityPending,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.repo.SavePair(ctx, pair); err != nil {
		return models.Pair{}, err
	}
	logger.WithField("pair_id", pair.ID).Info("Pair created")
	return pair, nil
}

func (s *Service) Pair(ctx context.Context, id string) (models.Pair, error) {
	return s.repo.GetPair(ctx, id)
}

func (s *Service) Pairs(ctx context.Context) ([]models.Pair, error) {
	return s.repo.ListPairs(ctx)
}

// PairOf returns the pair partyID belongs to, or ErrNotFound.
func (s *Service) PairOf(ctx context.Context, partyID string) (models.Pair, error) {
	pairs, err := s.repo.ListPairs(ctx)
	if err != nil {
		return models.Pair{}, err
	}
	for _, p := range pairs {
		if p.Partner(partyID) != "" {
			return p, nil
		}
	}
	return models.Pair{}, fmt.Errorf("pair of %s: %w", partyID, errs.ErrNotFound)
}

// Partner returns the id of partyID's pair partner, or "" when unpaired.
func (s *Service) Partner(ctx context.Context, partyID string) (string, error) {
	pair, err := s.PairOf(ctx, partyID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return pair.Partner(partyID), nil
}

// SetCompatibility records a tissue-typing verdict on the pair.
func (s *Service) SetCompatibility(ctx context.Context, pairID string, status models.CompatibilityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, err := s.repo.GetPair(ctx, pairID)
	if err != nil {
		return err
	}
	if pair.CompatibilityStatus == status {
		return nil
	}
	pair.CompatibilityStatus = status
	return s.repo.SavePair(ctx, pair)
}

// CompatibilityObserver updates the pair's compatibility status when a
// tissue-typing commit carries a final verdict.
func (s *Service) CompatibilityObserver() workflow.Observer {
	return workflow.ObserverFunc(func(ctx context.Context, ev workflow.CommitEvent) {
		typing, ok := ev.Payload.(*workflow.TissueTyping)
		if !ok || ev.Origin != workflow.OriginLocal {
			return
		}
		status := models.CompatibilityStatus(typing.FinalAssessment.FinalResult)
		if status != models.CompatibilityCompatible && status != models.CompatibilityIncompatible {
			return
		}
		pair, err := s.PairOf(ctx, ev.PartyID)
		if err != nil {
			return
		}
		if err := s.SetCompatibility(ctx, pair.ID, status); err != nil {
			logger.ForParty(ev.PartyID, ev.PhaseID).WithError(err).Warn("Failed to update pair compatibility")
		}
	})
}

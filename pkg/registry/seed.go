package registry

import (
	"context"

	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/common/models"
)

var demoParties = []models.RegisterPartyRequest{
	{
		Name:           "John Smith",
		Role:           models.RoleDonor,
		Age:            45,
		Gender:         models.GenderMale,
		BloodType:      "A+",
		ContactNumber:  "555-123-4567",
		MedicalHistory: []string{"Hypertension (controlled)", "History of kidney stones"},
		Medications:    []string{"Lisinopril"},
		Allergies:      []string{"Penicillin"},
	},
	{
		Name:           "Jane Smith",
		Role:           models.RoleRecipient,
		Age:            42,
		Gender:         models.GenderFemale,
		BloodType:      "A+",
		ContactNumber:  "555-123-4568",
		MedicalHistory: []string{"End-Stage Renal Disease (ESRD) due to Polycystic Kidney Disease (PKD)"},
		Medications:    []string{"Sevelamer", "Erythropoietin"},
		Allergies:      []string{"None"},
	},
	{
		Name:           "Robert Johnson",
		Role:           models.RoleRecipient,
		Age:            58,
		Gender:         models.GenderMale,
		BloodType:      "O-",
		ContactNumber:  "555-987-6543",
		MedicalHistory: []string{"Diabetic Nephropathy", "Coronary Artery Disease"},
		Medications:    []string{"Insulin", "Metoprolol", "Aspirin"},
		Allergies:      []string{"Sulfa drugs"},
	},
}

// Seed registers the demo parties and pairs the first two. It does nothing
// when any party already exists.
func (s *Service) Seed(ctx context.Context) error {
	existing, err := s.Parties(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	registered := make([]models.Party, 0, len(demoParties))
	for _, req := range demoParties {
		p, err := s.Register(ctx, req)
		if err != nil {
			return err
		}
		registered = append(registered, p)
	}
	if _, err := s.CreatePair(ctx, models.CreatePairRequest{DonorID: registered[0].ID, RecipientID: registered[1].ID}); err != nil {
		return err
	}
	logger.Log.WithField("parties", len(registered)).Info("Seeded demo data")
	return nil
}

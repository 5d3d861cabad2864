package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/recordstore"
)

const (
	partyIndexKey = "parties/_index"
	pairIndexKey  = "pairs/_index"
)

func partyKey(id string) string { return "parties/" + id }
func pairKey(id string) string  { return "pairs/" + id }

// Repository persists parties and pairs as JSON records with an id index
// per collection.
type Repository struct {
	records recordstore.Store
}

func NewRepository(records recordstore.Store) *Repository {
	return &Repository{records: records}
}

func (r *Repository) getJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := r.records.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r *Repository) setJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.records.Set(ctx, key, raw)
}

func (r *Repository) index(ctx context.Context, key string) ([]string, error) {
	var ids []string
	err := r.getJSON(ctx, key, &ids)
	if errors.Is(err, errs.ErrNotFound) {
		return []string{}, nil
	}
	return ids, err
}

func (r *Repository) appendIndex(ctx context.Context, key, id string) error {
	ids, err := r.index(ctx, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return r.setJSON(ctx, key, append(ids, id))
}

func (r *Repository) SaveParty(ctx context.Context, p models.Party) error {
	if err := r.setJSON(ctx, partyKey(p.ID), p); err != nil {
		return err
	}
	return r.appendIndex(ctx, partyIndexKey, p.ID)
}

func (r *Repository) GetParty(ctx context.Context, id string) (models.Party, error) {
	var p models.Party
	if err := r.getJSON(ctx, partyKey(id), &p); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.Party{}, fmt.Errorf("party %s: %w", id, errs.ErrNotFound)
		}
		return models.Party{}, err
	}
	return p, nil
}

func (r *Repository) ListParties(ctx context.Context) ([]models.Party, error) {
	ids, err := r.index(ctx, partyIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([]models.Party, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetParty(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Repository) SavePair(ctx context.Context, p models.Pair) error {
	if err := r.setJSON(ctx, pairKey(p.ID), p); err != nil {
		return err
	}
	return r.appendIndex(ctx, pairIndexKey, p.ID)
}

func (r *Repository) GetPair(ctx context.Context, id string) (models.Pair, error) {
	var p models.Pair
	if err := r.getJSON(ctx, pairKey(id), &p); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.Pair{}, fmt.Errorf("pair %s: %w", id, errs.ErrNotFound)
		}
		return models.Pair{}, err
	}
	return p, nil
}

func (r *Repository) ListPairs(ctx context.Context) ([]models.Pair, error) {
	ids, err := r.index(ctx, pairIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([]models.Pair, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetPair(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

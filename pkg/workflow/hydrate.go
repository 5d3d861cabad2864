package workflow

import (
	"encoding/json"
	"fmt"
	"math"
)

// Hydrate reconciles a persisted workflow record with the template for its
// role. Fields the record lacks (or holds as null) take the template value,
// objects are merged recursively, and arrays and primitives keep the
// persisted value. Array elements carrying an "id" are hydrated against the
// template element with the same id. A persisted phase whose kind differs
// from the template's is replaced by the template phase, as is a missing one.
func Hydrate(record []byte, tmpl Workflow) (Workflow, error) {
	var persisted struct {
		Phases []json.RawMessage `json:"phases"`
	}
	if err := json.Unmarshal(record, &persisted); err != nil {
		return Workflow{}, fmt.Errorf("decode workflow record: %w", err)
	}

	byID := make(map[int]map[string]interface{}, len(persisted.Phases))
	for _, raw := range persisted.Phases {
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			continue
		}
		id, ok := obj["id"].(float64)
		if !ok {
			continue
		}
		byID[int(id)] = obj
	}

	out := Workflow{PartyID: tmpl.PartyID, Role: tmpl.Role, Phases: make([]Phase, 0, len(tmpl.Phases))}
	for _, tp := range tmpl.Phases {
		p, err := HydratePhase(byID[tp.ID], tp)
		if err != nil {
			return Workflow{}, err
		}
		out.Phases = append(out.Phases, p)
	}
	return out, nil
}

// HydratePhase hydrates one phase given in its generic JSON form. A nil
// persisted value yields the template phase.
func HydratePhase(persisted map[string]interface{}, tmpl Phase) (Phase, error) {
	if persisted == nil || persisted["kind"] != string(tmpl.Kind) {
		return tmpl, nil
	}
	generic, err := toGeneric(tmpl)
	if err != nil {
		return Phase{}, err
	}
	merged := wholeNumbers(hydrateValue(persisted, generic))
	merged.(map[string]interface{})["id"] = float64(tmpl.ID)

	raw, err := json.Marshal(merged)
	if err != nil {
		return Phase{}, fmt.Errorf("phase %d: %w", tmpl.ID, err)
	}
	var p Phase
	if err := json.Unmarshal(raw, &p); err != nil {
		return Phase{}, fmt.Errorf("hydrate phase %d: %w", tmpl.ID, err)
	}
	return p, nil
}

// wholeNumbers rounds every number in v. The workflow model holds only
// integer counters, so a fractional value would otherwise fail to decode.
func wholeNumbers(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		return math.Round(x)
	case map[string]interface{}:
		for k, child := range x {
			x[k] = wholeNumbers(child)
		}
	case []interface{}:
		for i, child := range x {
			x[i] = wholeNumbers(child)
		}
	}
	return v
}

// HydratePayload runs payload through the same merge against the template
// payload, which removes nulls introduced by a client write.
func HydratePayload(payload Payload, tmpl Phase) (Payload, error) {
	phase := tmpl
	phase.Payload = payload
	generic, err := toGeneric(phase)
	if err != nil {
		return nil, err
	}
	hydrated, err := HydratePhase(generic.(map[string]interface{}), tmpl)
	if err != nil {
		return nil, err
	}
	return hydrated.Payload, nil
}

func toGeneric(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func hydrateValue(persisted, tmpl interface{}) interface{} {
	if persisted == nil {
		return tmpl
	}
	switch t := tmpl.(type) {
	case map[string]interface{}:
		p, ok := persisted.(map[string]interface{})
		if !ok {
			return tmpl
		}
		for k, tv := range t {
			pv, present := p[k]
			if !present || pv == nil {
				p[k] = tv
				continue
			}
			p[k] = hydrateValue(pv, tv)
		}
		return p
	case []interface{}:
		p, ok := persisted.([]interface{})
		if !ok {
			return tmpl
		}
		byID := make(map[interface{}]interface{}, len(t))
		for _, elem := range t {
			if id, ok := elementID(elem); ok {
				byID[id] = elem
			}
		}
		for i, elem := range p {
			id, ok := elementID(elem)
			if !ok {
				continue
			}
			if te, found := byID[id]; found {
				p[i] = hydrateValue(elem, te)
			}
		}
		return p
	case nil:
		return persisted
	}
	if sameScalarType(persisted, tmpl) {
		return persisted
	}
	return tmpl
}

func elementID(v interface{}) (interface{}, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	switch id := obj["id"].(type) {
	case string, float64:
		return id, true
	}
	return nil, false
}

func sameScalarType(a, b interface{}) bool {
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case float64:
		_, ok := b.(float64)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	}
	return false
}

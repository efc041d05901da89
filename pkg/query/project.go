package query

import (
	"encoding/json"
	"errors"
	"fmt"
)

const idField = "_id"

// Projection maps a field to true (include) or false (exclude).
type Projection map[string]bool

func parseProjection(raw string) (Projection, error) {
	var m map[string]any
	if err := decodeObject(raw, &m); err != nil {
		return nil, err
	}
	p := make(Projection, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case float64:
			p[k] = x != 0
		case bool:
			p[k] = x
		default:
			return nil, fmt.Errorf("select value for %q must be 0 or 1", k)
		}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p Projection) validate() error {
	var incl, excl bool
	for k, v := range p {
		if k == idField {
			continue
		}
		if v {
			incl = true
		} else {
			excl = true
		}
	}
	if incl && excl {
		return errors.New("cannot mix inclusion and exclusion")
	}
	return nil
}

func (p Projection) inclusive() bool {
	for k, v := range p {
		if k != idField && v {
			return true
		}
	}
	return len(p) == 1 && p[idField]
}

// Project renders doc as JSON and keeps the selected fields. An inclusive
// projection keeps _id unless it is excluded explicitly.
func Project(doc any, p Projection) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return m, nil
	}
	if p.inclusive() {
		out := make(map[string]any, len(p)+1)
		for k, v := range p {
			if v {
				if val, ok := m[k]; ok {
					out[k] = val
				}
			}
		}
		if keep, set := p[idField]; !set || keep {
			if id, ok := m[idField]; ok {
				out[idField] = id
			}
		}
		return out, nil
	}
	for k, v := range p {
		if !v {
			delete(m, k)
		}
	}
	return m, nil
}

// ProjectAll applies Project to every element.
func ProjectAll[T any](docs []T, p Projection) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		m, err := Project(d, p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

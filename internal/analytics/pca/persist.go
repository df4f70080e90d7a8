package pca

import "fmt"

// Params is the serializable form of a fitted Model, used to persist
// models across restarts.
type Params struct {
	Means       []float64   `json:"means"`
	Scales      []float64   `json:"scales"`
	Components  [][]float64 `json:"components"`
	BaselineT2  []float64   `json:"baseline_t2"`
	BaselineSPE []float64   `json:"baseline_spe"`
}

// Params exports the model's parameters. Returns nil for a nil model.
func (m *Model) Params() *Params {
	if m == nil {
		return nil
	}
	return &Params{
		Means:       m.means,
		Scales:      m.scales,
		Components:  m.components,
		BaselineT2:  m.baselineT2,
		BaselineSPE: m.baselineSPE,
	}
}

// FromParams reconstructs a fitted Model from persisted parameters.
func FromParams(p *Params) (*Model, error) {
	if p == nil {
		return nil, fmt.Errorf("pca: nil params")
	}
	dim := len(p.Means)
	if dim == 0 || len(p.Scales) != dim {
		return nil, fmt.Errorf("pca: malformed params: %d means, %d scales", dim, len(p.Scales))
	}
	for i, comp := range p.Components {
		if len(comp) != dim {
			return nil, fmt.Errorf("pca: component %d has %d entries, expected %d", i, len(comp), dim)
		}
	}
	return &Model{
		means:       p.Means,
		scales:      p.Scales,
		components:  p.Components,
		dim:         dim,
		k:           len(p.Components),
		baselineT2:  p.BaselineT2,
		baselineSPE: p.BaselineSPE,
	}, nil
}

package pca

// Package pca implements the multivariate monitor: a fixed-rank principal
// subspace model fitted offline on baseline feature vectors, scoring new
// vectors with two statistics:
//
//   - T2: sum of squared projected-component scores. Large values mean the
//     point is far from the baseline centroid along known variation
//     directions. Deliberately NOT divided by eigenvalues; historical
//     scores depend on this simplification.
//   - SPE: squared prediction error, the residual energy orthogonal to the
//     retained subspace. Large values mean a previously unseen mode of
//     variation.
//
// A fitted Model is an immutable value object. Refits produce a fresh
// Model swapped in whole by the caller, so concurrent scoring never
// observes a half-updated model.

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultComponents is the retained subspace rank used when none is
// configured.
const DefaultComponents = 3

// maxPowerIterations bounds the per-component power iteration.
const maxPowerIterations = 200

// convergenceTol is the eigenvector convergence tolerance.
const convergenceTol = 1e-10

var (
	// ErrInsufficientBaseline is returned when fit is called with fewer
	// rows than retained components, or no rows at all.
	ErrInsufficientBaseline = errors.New("pca: insufficient baseline rows")

	// ErrDegenerateColumn is returned when a baseline column has zero
	// variance and cannot be standardized.
	ErrDegenerateColumn = errors.New("pca: zero variance baseline column")

	// ErrDimensionMismatch is returned when a scored vector's length
	// differs from the fitted model's feature dimension.
	ErrDimensionMismatch = errors.New("pca: feature dimension mismatch")

	// ErrRaggedBaseline is returned when baseline rows have unequal length.
	ErrRaggedBaseline = errors.New("pca: baseline rows have unequal length")
)

// Model is the fitted dimensionality-reduction model: per-feature
// standardization parameters plus the orthonormal basis of the top-k
// principal directions, together with the baseline's own score
// distributions for downstream calibration.
type Model struct {
	means      []float64
	scales     []float64
	components [][]float64 // k rows, each a unit vector of length dim
	dim        int
	k          int

	// Sorted baseline score distributions, used by the score combiner to
	// percentile-rank raw statistics.
	baselineT2  []float64
	baselineSPE []float64
}

// Fit standardizes the baseline matrix and extracts the top-k principal
// directions of its covariance. Each row is one feature vector drawn from
// known-normal operation; all rows must share identical length.
func Fit(baseline [][]float64, k int) (*Model, error) {
	if k <= 0 {
		k = DefaultComponents
	}
	if len(baseline) < k || len(baseline) == 0 {
		return nil, fmt.Errorf("%w: %d rows for %d components", ErrInsufficientBaseline, len(baseline), k)
	}

	dim := len(baseline[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty feature vectors", ErrInsufficientBaseline)
	}
	for i, row := range baseline {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrRaggedBaseline, i, len(row), dim)
		}
	}
	if k > dim {
		k = dim
	}

	means, scales, err := standardizationParams(baseline, dim)
	if err != nil {
		return nil, err
	}

	// Standardize the baseline in one pass; the covariance and the
	// calibration scores both work on standardized rows.
	std := make([][]float64, len(baseline))
	for i, row := range baseline {
		z := make([]float64, dim)
		for j, v := range row {
			z[j] = (v - means[j]) / scales[j]
		}
		std[i] = z
	}

	cov := covariance(std, dim)
	components := topComponents(cov, dim, k)

	m := &Model{
		means:      means,
		scales:     scales,
		components: components,
		dim:        dim,
		k:          len(components),
	}

	// Score the baseline against itself for calibration.
	m.baselineT2 = make([]float64, 0, len(std))
	m.baselineSPE = make([]float64, 0, len(std))
	for _, z := range std {
		t2, spe := m.scoreStandardized(z)
		m.baselineT2 = append(m.baselineT2, t2)
		m.baselineSPE = append(m.baselineSPE, spe)
	}
	sort.Float64s(m.baselineT2)
	sort.Float64s(m.baselineSPE)

	return m, nil
}

// Score computes (T2, SPE) for a single feature vector. A nil model is the
// unfitted monitor and returns the neutral (0, 0) no-signal result; callers
// must treat that as "no information", not "no anomaly".
func (m *Model) Score(vec []float64) (t2, spe float64, err error) {
	if m == nil {
		return 0, 0, nil
	}
	if len(vec) != m.dim {
		return 0, 0, fmt.Errorf("%w: got %d features, model expects %d", ErrDimensionMismatch, len(vec), m.dim)
	}

	z := make([]float64, m.dim)
	for j, v := range vec {
		z[j] = (v - m.means[j]) / m.scales[j]
	}
	t2, spe = m.scoreStandardized(z)
	return t2, spe, nil
}

// Dim returns the fitted feature dimension, 0 for a nil model.
func (m *Model) Dim() int {
	if m == nil {
		return 0
	}
	return m.dim
}

// Components returns the retained subspace rank, 0 for a nil model.
func (m *Model) Components() int {
	if m == nil {
		return 0
	}
	return m.k
}

// BaselineT2 returns the sorted baseline T2 distribution.
func (m *Model) BaselineT2() []float64 {
	if m == nil {
		return nil
	}
	out := make([]float64, len(m.baselineT2))
	copy(out, m.baselineT2)
	return out
}

// BaselineSPE returns the sorted baseline SPE distribution.
func (m *Model) BaselineSPE() []float64 {
	if m == nil {
		return nil
	}
	out := make([]float64, len(m.baselineSPE))
	copy(out, m.baselineSPE)
	return out
}

// scoreStandardized computes both statistics for an already-standardized
// vector: project onto the basis, sum squared scores for T2, reconstruct
// and sum squared residuals for SPE.
func (m *Model) scoreStandardized(z []float64) (t2, spe float64) {
	scores := make([]float64, m.k)
	for c, comp := range m.components {
		s := 0.0
		for j := range z {
			s += comp[j] * z[j]
		}
		scores[c] = s
		t2 += s * s
	}

	for j := range z {
		recon := 0.0
		for c, comp := range m.components {
			recon += scores[c] * comp[j]
		}
		resid := z[j] - recon
		spe += resid * resid
	}
	return t2, spe
}

// standardizationParams computes per-column mean and population std dev,
// failing on any zero-variance column.
func standardizationParams(rows [][]float64, dim int) (means, scales []float64, err error) {
	n := float64(len(rows))
	means = make([]float64, dim)
	scales = make([]float64, dim)

	for _, row := range rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - means[j]
			scales[j] += d * d
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / n)
		if scales[j] == 0 {
			return nil, nil, fmt.Errorf("%w: column %d", ErrDegenerateColumn, j)
		}
	}
	return means, scales, nil
}

// covariance computes the covariance matrix of standardized rows.
func covariance(std [][]float64, dim int) [][]float64 {
	n := float64(len(std))
	cov := make([][]float64, dim)
	for i := range cov {
		cov[i] = make([]float64, dim)
	}
	for _, z := range std {
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				cov[i][j] += z[i] * z[j]
			}
		}
	}
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			cov[i][j] /= n
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}

// topComponents extracts the k dominant eigenvectors of a symmetric matrix
// by power iteration with deflation. Components whose eigenvalue collapses
// to zero are dropped, so the returned basis may be shorter than k.
func topComponents(cov [][]float64, dim, k int) [][]float64 {
	// Work on a copy; deflation mutates the matrix.
	a := make([][]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim)
		copy(a[i], cov[i])
	}

	components := make([][]float64, 0, k)
	for c := 0; c < k; c++ {
		vec, val := dominantEigenvector(a, dim, c)
		if vec == nil || val <= convergenceTol {
			break
		}
		components = append(components, vec)

		// Deflate: a -= val * vec vecᵀ
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				a[i][j] -= val * vec[i] * vec[j]
			}
		}
	}
	return components
}

// dominantEigenvector runs power iteration on a symmetric matrix. The seed
// index varies per component so a start vector orthogonal to the dominant
// direction cannot stall every extraction.
func dominantEigenvector(a [][]float64, dim, seed int) ([]float64, float64) {
	v := make([]float64, dim)
	for i := range v {
		v[i] = 1.0 / float64(dim)
	}
	v[seed%dim] += 1.0
	normalize(v)

	next := make([]float64, dim)
	var val float64
	for iter := 0; iter < maxPowerIterations; iter++ {
		for i := 0; i < dim; i++ {
			s := 0.0
			for j := 0; j < dim; j++ {
				s += a[i][j] * v[j]
			}
			next[i] = s
		}

		norm := normalize(next)
		if norm <= convergenceTol {
			return nil, 0
		}

		delta := 0.0
		for i := range v {
			// Eigenvectors are sign-ambiguous; compare up to sign.
			delta += math.Min(math.Abs(next[i]-v[i]), math.Abs(next[i]+v[i]))
		}
		v, next = next, v
		val = norm
		if delta < convergenceTol {
			break
		}
	}

	out := make([]float64, dim)
	copy(out, v)
	return out, val
}

// normalize scales a vector to unit length and returns its prior norm.
func normalize(v []float64) float64 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
	return norm
}

// Package pca extracts principal components from a vote matrix by power
// iteration with deflation.
//
// The decomposition is deterministic: every component starts from the same
// uniform direction and is oriented by a fixed sign convention, so identical
// input always produces identical axes. Components are extracted one after
// another from the residual left by the previous ones, which keeps them
// mutually orthogonal and makes the procedure inherently sequential.
package pca

import "math"

// Options tune the decomposition. Zero values are replaced by defaults
// except Tolerance, where zero disables the early stop.
type Options struct {
	Components int
	Iterations int
	Tolerance  float64
	Epsilon    float64
}

// DefaultOptions returns the reference settings: three components, one
// hundred power-iteration rounds.
func DefaultOptions() Options {
	return Options{
		Components: 3,
		Iterations: 100,
		Tolerance:  1e-12,
		Epsilon:    1e-9,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Components <= 0 {
		o.Components = d.Components
	}
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	if o.Tolerance < 0 {
		o.Tolerance = 0
	}
	if o.Epsilon <= 0 {
		o.Epsilon = d.Epsilon
	}
	return o
}

// Result is the outcome of a decomposition over an n x m matrix.
type Result struct {
	// Components[c] is the unit loading vector (length m) of axis c, or all
	// zeros when the residual had no variance left.
	Components [][]float64
	// Variance[c] is the mean squared score along axis c.
	Variance []float64
	// Scores[i][c] is legislator i's coordinate on axis c, computed from the
	// centered matrix rather than the deflated residual.
	Scores [][]float64
	// Means[j] is the column mean subtracted from issue j.
	Means []float64
	// Centered is the input with Means subtracted.
	Centered [][]float64
	// Iterations[c] is the number of power-iteration rounds axis c used.
	Iterations []int
}

// Empty reports whether the decomposition ran on an empty matrix.
func (r *Result) Empty() bool {
	return r == nil || len(r.Components) == 0
}

// Decompose runs the decomposition on data, a dense row-major matrix with one
// row per legislator. Rows must share the same length. An empty matrix yields
// an empty Result rather than an error.
func Decompose(data [][]float64, opts Options) *Result {
	opts = opts.withDefaults()
	n := len(data)
	if n == 0 || len(data[0]) == 0 {
		return &Result{}
	}
	m := len(data[0])

	centered, means := Center(data)
	residual := cloneMatrix(centered)

	res := &Result{
		Components: make([][]float64, 0, opts.Components),
		Variance:   make([]float64, 0, opts.Components),
		Means:      means,
		Centered:   centered,
		Iterations: make([]int, 0, opts.Components),
	}

	for c := 0; c < opts.Components; c++ {
		component, rounds := dominantDirection(residual, m, opts)
		scores := multiply(residual, component)

		var sumSq float64
		for _, s := range scores {
			sumSq += s * s
		}
		variance := sumSq / float64(n)

		// Deflate: remove this axis from the residual.
		for i := range residual {
			if scores[i] == 0 {
				continue
			}
			row := residual[i]
			for j := range row {
				row[j] -= scores[i] * component[j]
			}
		}

		res.Components = append(res.Components, component)
		res.Variance = append(res.Variance, variance)
		res.Iterations = append(res.Iterations, rounds)
	}

	res.Scores = Project(centered, res.Components)
	return res
}

// Center subtracts each column's mean and returns the centered copy together
// with the means.
func Center(data [][]float64) ([][]float64, []float64) {
	n := len(data)
	if n == 0 {
		return [][]float64{}, []float64{}
	}
	m := len(data[0])
	means := make([]float64, m)
	for _, row := range data {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	centered := make([][]float64, n)
	for i, row := range data {
		out := make([]float64, m)
		for j, v := range row {
			out[j] = v - means[j]
		}
		centered[i] = out
	}
	return centered, means
}

// Project returns rows x componentsᵗ: the coordinate of every row on every
// component.
func Project(rows [][]float64, components [][]float64) [][]float64 {
	scores := make([][]float64, len(rows))
	for i, row := range rows {
		coords := make([]float64, len(components))
		for c, comp := range components {
			coords[c] = dot(row, comp)
		}
		scores[i] = coords
	}
	return scores
}

// dominantDirection power-iterates on residual. It returns a zero vector when
// the residual carries no variance.
func dominantDirection(residual [][]float64, m int, opts Options) ([]float64, int) {
	start := make([]float64, m)
	u := 1 / math.Sqrt(float64(m))
	for j := range start {
		start[j] = u
	}

	direction, rounds, ok := powerIterate(residual, start, opts)
	if !ok {
		// The uniform start can be orthogonal to what is left of the
		// residual; retry from its heaviest column.
		j, norm := heaviestColumn(residual)
		if norm < opts.Epsilon {
			return make([]float64, m), rounds
		}
		start = make([]float64, m)
		start[j] = 1
		var more int
		direction, more, ok = powerIterate(residual, start, opts)
		rounds += more
		if !ok {
			return make([]float64, m), rounds
		}
	}
	orient(direction, opts.Epsilon)
	return direction, rounds
}

// powerIterate reports ok=false if the iteration collapsed below epsilon.
func powerIterate(residual [][]float64, start []float64, opts Options) ([]float64, int, bool) {
	direction := start
	rounds := 0
	for rounds < opts.Iterations {
		rounds++
		scores := multiply(residual, direction)
		next := multiplyTransposed(residual, scores, len(direction))
		norm := math.Sqrt(dot(next, next))
		if norm < opts.Epsilon {
			return nil, rounds, false
		}
		var delta float64
		for j := range next {
			next[j] /= norm
			d := next[j] - direction[j]
			delta += d * d
		}
		direction = next
		if opts.Tolerance > 0 && math.Sqrt(delta) < opts.Tolerance {
			break
		}
	}
	return direction, rounds, true
}

// orient applies the sign convention: loadings summing to a positive value
// are negated. A sum within epsilon of zero is decided by the largest
// magnitude loading, which is made negative.
func orient(v []float64, epsilon float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	flip := sum > epsilon
	if math.Abs(sum) <= epsilon {
		best := 0
		for j := range v {
			if math.Abs(v[j]) > math.Abs(v[best])+epsilon {
				best = j
			}
		}
		flip = v[best] > 0
	}
	if !flip {
		return
	}
	for j := range v {
		if v[j] == 0 {
			continue
		}
		v[j] = -v[j]
	}
}

func heaviestColumn(matrix [][]float64) (int, float64) {
	if len(matrix) == 0 {
		return 0, 0
	}
	norms := make([]float64, len(matrix[0]))
	for _, row := range matrix {
		for j, v := range row {
			norms[j] += v * v
		}
	}
	best := 0
	for j := range norms {
		if norms[j] > norms[best] {
			best = j
		}
	}
	return best, math.Sqrt(norms[best])
}

func multiply(matrix [][]float64, v []float64) []float64 {
	out := make([]float64, len(matrix))
	for i, row := range matrix {
		out[i] = dot(row, v)
	}
	return out
}

func multiplyTransposed(matrix [][]float64, v []float64, cols int) []float64 {
	out := make([]float64, cols)
	for i, row := range matrix {
		if v[i] == 0 {
			continue
		}
		for j, x := range row {
			out[j] += x * v[i]
		}
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func cloneMatrix(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for i, row := range src {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

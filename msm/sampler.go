package msm

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Sampler draws row-stochastic transition matrices from the posterior
// defined by a matrix of transition counts, restricted to matrices that
// satisfy detailed balance.  The sampler works on a symmetric matrix of
// nonnegative weights x, with the transition matrix given by T_ij = x_ij /
// sum_k x_ik.  Every matrix of this form is reversible with respect to the
// normalized row sums of x, so the restriction holds exactly for every
// returned matrix.
type Sampler struct {

	// Step size of the log-scale random walk proposals
	Step float64

	// Number of states
	n int

	// The transition counts and their row sums
	cnt  []float64
	rowc []float64

	// The symmetric weight matrix and its row sums
	x    []float64
	rowx []float64

	rng *rand.Rand
}

// NewSampler returns a sampler for the posterior over reversible
// transition matrices given the n x n matrix of transition counts, packed
// by row.
func NewSampler(counts []float64, n int, rng *rand.Rand) *Sampler {

	if len(counts) != n*n {
		panic("NewSampler: wrong size for count matrix")
	}

	s := &Sampler{
		Step: 1,
		n:    n,
		cnt:  append([]float64(nil), counts...),
		rowc: make([]float64, n),
		x:    make([]float64, n*n),
		rowx: make([]float64, n),
		rng:  rng,
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := counts[i*n+j]
			if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
				panic("NewSampler: invalid transition count")
			}
			s.rowc[i] += c

			// Start from the symmetrized counts, smoothed so that
			// every weight is positive.
			s.x[i*n+j] = counts[i*n+j] + counts[j*n+i] + 1
		}
	}

	s.renormalize()

	return s
}

// Sample advances the underlying Markov chain by nstep sweeps and returns
// the transition matrix at the resulting point, packed by row.
func (s *Sampler) Sample(nstep int) []float64 {

	for k := 0; k < nstep; k++ {
		s.sweep()
	}

	return s.trans()
}

// sweep applies one Metropolis update to every free element of the weight
// matrix, then fixes the scale, which the posterior does not identify.
func (s *Sampler) sweep() {

	for i := 0; i < s.n; i++ {
		for j := i; j < s.n; j++ {
			s.update(i, j)
		}
	}

	s.renormalize()
}

// update applies a Metropolis step to the weight x_ij, proposing a
// log-scale shift.  The +1 in the leading coefficient is the Jacobian of
// the multiplicative proposal.
func (s *Sampler) update(i, j int) {

	old := s.x[i*s.n+j]
	delta := s.Step * (2*s.rng.Float64() - 1)
	prop := old * math.Exp(delta)
	if prop <= 0 || math.IsInf(prop, 0) {
		return
	}
	d := prop - old

	var logacc float64
	if i == j {
		logacc = (s.cnt[i*s.n+i]+1)*delta - s.rowc[i]*math.Log((s.rowx[i]+d)/s.rowx[i])
	} else {
		logacc = (s.cnt[i*s.n+j]+s.cnt[j*s.n+i]+1)*delta -
			s.rowc[i]*math.Log((s.rowx[i]+d)/s.rowx[i]) -
			s.rowc[j]*math.Log((s.rowx[j]+d)/s.rowx[j])
	}

	if math.Log(s.rng.Float64()) < logacc {
		s.x[i*s.n+j] = prop
		s.x[j*s.n+i] = prop
		s.rowx[i] += d
		if i != j {
			s.rowx[j] += d
		}
	}
}

// renormalize rescales the weights to sum to 1 and refreshes the row sums.
func (s *Sampler) renormalize() {

	floats.Scale(1/floats.Sum(s.x), s.x)

	for i := 0; i < s.n; i++ {
		s.rowx[i] = floats.Sum(s.x[i*s.n : (i+1)*s.n])
	}
}

// trans returns the transition matrix implied by the current weights.
func (s *Sampler) trans() []float64 {

	tr := make([]float64, s.n*s.n)

	for i := 0; i < s.n; i++ {
		row := s.x[i*s.n : (i+1)*s.n]
		z := floats.Sum(row)
		for j := 0; j < s.n; j++ {
			tr[i*s.n+j] = row[j] / z
		}
	}

	return tr
}

package hmmlib

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"
	"math/cmplx"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Minimum allowed value for the observation SD
	sdmin = 1e-8
)

// HMM represents a hidden Markov model with a finite state space and a
// scalar emission distribution for each state.  The transition matrix and
// initial state distribution are stored together with log-scale caches
// that are refreshed whenever a setter is called, so the caches can never
// go stale relative to the probabilities.
type HMM struct {

	// Number of states
	NState int

	// The output (emission) model
	Out OutputModel

	// Hidden state trajectories from the most recent posterior update,
	// one per observation sequence
	StateTraj [][]int

	// The transition probability matrix, packed by row
	trans []float64

	// The initial state distribution
	pi []float64

	// Log-scale caches for trans and pi
	logTrans []float64
	logPi    []float64
}

// NewHMM returns an HMM with the given transition probability matrix and
// output model.  The initial state distribution is set to the stationary
// distribution of the transition matrix; use SetPi to override it.
func NewHMM(nstate int, trans []float64, out OutputModel) *HMM {

	hmm := &HMM{
		NState: nstate,
		Out:    out,
	}

	hmm.SetTrans(trans)

	return hmm
}

// SetTrans sets the transition probability matrix, refreshes its log-scale
// cache, and re-derives the initial state distribution as the stationary
// distribution of the new matrix.  Call SetPi afterward to use an initial
// distribution other than the stationary one.
func (hmm *HMM) SetTrans(trans []float64) {

	if len(trans) != hmm.NState*hmm.NState {
		panic("SetTrans: wrong size for transition matrix")
	}

	hmm.trans = append(hmm.trans[:0], trans...)

	if hmm.logTrans == nil {
		hmm.logTrans = make([]float64, hmm.NState*hmm.NState)
	}
	for j, t := range hmm.trans {
		hmm.logTrans[j] = math.Log(t)
	}

	hmm.SetPi(stationaryDist(hmm.trans, hmm.NState))
}

// SetPi sets the initial state distribution and refreshes its log-scale
// cache.
func (hmm *HMM) SetPi(pi []float64) {

	if len(pi) != hmm.NState {
		panic("SetPi: wrong size for initial distribution")
	}

	hmm.pi = append(hmm.pi[:0], pi...)

	if hmm.logPi == nil {
		hmm.logPi = make([]float64, hmm.NState)
	}
	for j, p := range hmm.pi {
		hmm.logPi[j] = math.Log(p)
	}
}

// Trans returns a copy of the transition probability matrix, packed by row.
func (hmm *HMM) Trans() []float64 {
	return append([]float64(nil), hmm.trans...)
}

// Pi returns a copy of the initial state distribution.
func (hmm *HMM) Pi() []float64 {
	return append([]float64(nil), hmm.pi...)
}

// LogEmissionProb returns the log probability of emitting the value y from
// state st under the current output model.
func (hmm *HMM) LogEmissionProb(st int, y float64) float64 {
	return hmm.Out.LogProb(st, y)
}

// CountMatrix returns the matrix of one-step transition counts implied by
// the current hidden state trajectories, packed by row.  Counts never span
// the boundary between two trajectories.
func (hmm *HMM) CountMatrix() []float64 {

	cnt := make([]float64, hmm.NState*hmm.NState)

	for _, st := range hmm.StateTraj {
		for t := 0; t+1 < len(st); t++ {
			cnt[st[t]*hmm.NState+st[t+1]]++
		}
	}

	return cnt
}

// ObservationsInState gathers the observed values that the current hidden
// state trajectories assign to state st, in sequence order and then time
// order within each sequence.
func (hmm *HMM) ObservationsInState(obs [][]float64, st int) []float64 {

	if len(obs) != len(hmm.StateTraj) {
		panic("ObservationsInState: observations and trajectories do not align")
	}

	var v []float64
	for p, o := range obs {
		traj := hmm.StateTraj[p]
		for t := range o {
			if traj[t] == st {
				v = append(v, o[t])
			}
		}
	}

	return v
}

// Copy returns a deep copy of the model.  The copy shares no storage with
// the receiver, so mutating either one afterward leaves the other
// unchanged.
func (hmm *HMM) Copy() *HMM {

	cp := &HMM{
		NState:   hmm.NState,
		trans:    append([]float64(nil), hmm.trans...),
		pi:       append([]float64(nil), hmm.pi...),
		logTrans: append([]float64(nil), hmm.logTrans...),
		logPi:    append([]float64(nil), hmm.logPi...),
	}

	if hmm.Out != nil {
		cp.Out = hmm.Out.Copy()
	}

	if hmm.StateTraj != nil {
		cp.StateTraj = make([][]int, len(hmm.StateTraj))
		for p, st := range hmm.StateTraj {
			cp.StateTraj[p] = append([]int(nil), st...)
		}
	}

	return cp
}

// WriteSummary writes the model parameters to the given logger.  The
// optional row labels are used if provided.
func (hmm *HMM) WriteSummary(lg *log.Logger, labels []string, title string) {

	lg.Print(title)
	lg.Printf("\n")

	lg.Printf("Initial state distribution:\n")
	writeMatrix(lg, hmm.pi, hmm.NState, 1, labels)
	lg.Printf("\n")

	lg.Printf("Transition matrix:\n")
	writeMatrix(lg, hmm.trans, hmm.NState, hmm.NState, labels)
	lg.Printf("\n")

	switch out := hmm.Out.(type) {
	case *GaussianModel:
		lg.Printf("Means:\n")
		writeMatrix(lg, out.Mean, hmm.NState, 1, labels)
		lg.Printf("\n")
		lg.Printf("Standard deviations:\n")
		writeMatrix(lg, out.Std, hmm.NState, 1, labels)
		lg.Printf("\n")
	case *DiscreteModel:
		lg.Printf("Emission probabilities:\n")
		writeMatrix(lg, out.B, hmm.NState, out.NSymbol, labels)
		lg.Printf("\n")
	}
}

// writeMatrix writes a matrix in text format to the logger
func writeMatrix(lg *log.Logger, x []float64, nrow, ncol int, labels []string) {

	var buf bytes.Buffer

	for i := 0; i < nrow; i++ {

		buf.Reset()

		if labels != nil {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%-20s", labels[i]))
		}
		for j := 0; j < ncol; j++ {
			_, _ = io.WriteString(&buf, fmt.Sprintf("%12.4f ", x[i*ncol+j]))
		}

		lg.Print(buf.String())
	}
}

// stationaryDist returns the stationary distribution of the row-stochastic
// matrix tr, obtained from the left eigenvector with eigenvalue one.
func stationaryDist(tr []float64, n int) []float64 {

	if n == 1 {
		return []float64{1}
	}

	// Transpose so that the left eigenvector becomes a right eigenvector.
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, tr[j*n+i])
		}
	}

	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenRight); !ok {
		panic("stationaryDist: eigendecomposition failed")
	}

	// Locate the eigenvalue closest to 1
	vals := eig.Values(nil)
	jj := 0
	dd := math.Inf(1)
	for j, v := range vals {
		if d := cmplx.Abs(v - 1); d < dd {
			dd = d
			jj = j
		}
	}

	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	pi := make([]float64, n)
	for i := 0; i < n; i++ {
		pi[i] = math.Abs(real(vecs.At(i, jj)))
	}
	normalizeSum(pi, 1/float64(n))

	return pi
}

// CompareStates returns the number of positions where the state sequences
// x and y disagree, and the total number of positions.  Panics if the
// lengths of x and y differ.
func CompareStates(x, y []int) (int, int) {

	if len(x) != len(y) {
		panic("Lengths are not equal")
	}

	var e int
	for t := range x {
		if x[t] != y[t] {
			e++
		}
	}

	return e, len(x)
}

// normalize the values in x to have a sum of 1, filling with z if the
// total mass is negligible.
func normalizeSum(x []float64, z float64) {
	scale := floats.Sum(x)
	if scale < 1e-10 {
		for j := range x {
			x[j] = z
		}
		return
	}
	floats.Scale(1/scale, x)
}

// Subtract the maximum value from x, then exponentiate.
func normalizeMaxLog(x []float64) float64 {
	mx := floats.Max(x)
	floats.AddConst(-mx, x)
	for j := range x {
		x[j] = math.Exp(x[j])
	}

	return mx
}

// logSumExp returns log(sum(exp(x))), shifting by the maximum so that the
// exponentials cannot overflow.
func logSumExp(x []float64) float64 {

	mx := floats.Max(x)
	if math.IsInf(mx, -1) {
		return math.Inf(-1)
	}

	var s float64
	for _, v := range x {
		s += math.Exp(v - mx)
	}

	return mx + math.Log(s)
}

func argmax(x []float64) int {
	j := 0
	v := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > v {
			v = x[i]
			j = i
		}
	}

	return j
}

// Generate a discrete random variable from the given probability vector,
// which must sum to 1.
func genDiscrete(pr []float64, rng *rand.Rand) int {

	u := rng.Float64()
	p := 0.0
	for j := range pr {
		p += pr[j]
		if u < p {
			return j
		}
	}

	// Rounding can leave u beyond the accumulated total
	return len(pr) - 1
}

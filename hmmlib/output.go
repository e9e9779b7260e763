package hmmlib

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// ObsModelType indicates the form of the observation distribution.
type ObsModelType uint8

const (
	Gaussian ObsModelType = iota
	Discrete
)

// OutputModel is the emission distribution of an HMM: one scalar
// distribution per state, with enough structure to support posterior
// sampling of its parameters.
type OutputModel interface {

	// LogProb returns the log probability of emitting the value y
	// from state st.
	LogProb(st int, y float64) float64

	// Resample replaces the parameters of every state with a draw from
	// their conditional posterior, given the observations currently
	// assigned to that state.  byState has one slice per state.
	Resample(byState [][]float64, rng *rand.Rand)

	// Copy returns a deep copy of the output model.
	Copy() OutputModel
}

// GaussianModel is an output model in which each state emits from its own
// normal distribution.
type GaussianModel struct {

	// The emission means, one per state
	Mean []float64

	// The emission standard deviations, one per state
	Std []float64
}

// NewGaussianModel returns a Gaussian output model with the given per-state
// means and standard deviations.
func NewGaussianModel(mean, std []float64) *GaussianModel {

	if len(mean) != len(std) {
		panic("NewGaussianModel: mean and std lengths differ")
	}

	return &GaussianModel{
		Mean: append([]float64(nil), mean...),
		Std:  append([]float64(nil), std...),
	}
}

// LogProb returns the normal log density of y under state st.
func (out *GaussianModel) LogProb(st int, y float64) float64 {
	return distuv.Normal{Mu: out.Mean[st], Sigma: out.Std[st]}.LogProb(y)
}

// Resample draws new means and standard deviations from their conditional
// posterior under a Jeffreys prior.  A state with no observations keeps its
// current parameters, and a state with a single observation keeps its
// standard deviation.
func (out *GaussianModel) Resample(byState [][]float64, rng *rand.Rand) {

	for st, v := range byState {

		n := len(v)
		if n == 0 {
			continue
		}

		mn := stat.Mean(v, nil)
		nf := float64(n)
		out.Mean[st] = distuv.Normal{Mu: mn, Sigma: out.Std[st] / math.Sqrt(nf), Src: rng}.Rand()

		if n < 2 {
			continue
		}

		var ssq float64
		for _, y := range v {
			d := y - out.Mean[st]
			ssq += d * d
		}

		ch := distuv.ChiSquared{K: nf - 1, Src: rng}.Rand()
		sd := math.Sqrt(ssq/nf) / math.Sqrt(ch/nf)
		if sd < sdmin {
			sd = sdmin
		}
		out.Std[st] = sd
	}
}

// Copy returns a deep copy of the output model.
func (out *GaussianModel) Copy() OutputModel {
	return NewGaussianModel(out.Mean, out.Std)
}

// DiscreteModel is an output model in which each state emits symbols from
// the alphabet {0, ..., NSymbol-1} with state-specific probabilities.
// Observed values are the symbols represented as floats.
type DiscreteModel struct {

	// Number of symbols in the emission alphabet
	NSymbol int

	// The emission probabilities, packed by state
	B []float64
}

// NewDiscreteModel returns a discrete output model with the given emission
// probability matrix, packed by state.
func NewDiscreteModel(nsymbol int, b []float64) *DiscreteModel {

	if nsymbol < 1 || len(b)%nsymbol != 0 {
		panic("NewDiscreteModel: emission matrix does not conform to the alphabet size")
	}

	return &DiscreteModel{
		NSymbol: nsymbol,
		B:       append([]float64(nil), b...),
	}
}

// LogProb returns the log probability of emitting the symbol y from state
// st.  Values outside the alphabet have probability zero.
func (out *DiscreteModel) LogProb(st int, y float64) float64 {

	k := int(y)
	if k < 0 || k >= out.NSymbol || float64(k) != y {
		return math.Inf(-1)
	}

	return math.Log(out.B[st*out.NSymbol+k])
}

// Resample draws a new emission distribution for every state from the
// Dirichlet posterior under a flat prior.  A state with no observations
// draws from the prior.
func (out *DiscreteModel) Resample(byState [][]float64, rng *rand.Rand) {

	alpha := make([]float64, out.NSymbol)

	for st, v := range byState {

		for k := range alpha {
			alpha[k] = 1
		}
		for _, y := range v {
			alpha[int(y)]++
		}

		row := out.B[st*out.NSymbol : (st+1)*out.NSymbol]
		distmv.NewDirichlet(alpha, rng).Rand(row)
	}
}

// Copy returns a deep copy of the output model.
func (out *DiscreteModel) Copy() OutputModel {
	return NewDiscreteModel(out.NSymbol, out.B)
}

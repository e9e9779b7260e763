package hmmsim

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/bhmm/hmmlib"
)

// makeIntArray makes a collection of r slices
// of length c, packed contiguously.
func makeIntArray(r, c int) [][]int {

	bka := make([]int, r*c)
	x := make([][]int, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}

// makeFloatArray makes a collection of r slices
// of length c, packed contiguously.
func makeFloatArray(r, c int) [][]float64 {

	bka := make([]float64, r*c)
	x := make([][]float64, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}

// TransitionMatrix returns a random row-stochastic transition matrix with
// nstate states, packed by row.  When reversible is set, the underlying
// random weights are symmetrized first, so the matrix satisfies detailed
// balance.
func TransitionMatrix(nstate int, reversible bool, rng *rand.Rand) []float64 {

	x := make([]float64, nstate*nstate)
	for j := range x {
		x[j] = rng.Float64()
	}

	if reversible {
		for i := 0; i < nstate; i++ {
			for j := 0; j < i; j++ {
				v := (x[i*nstate+j] + x[j*nstate+i]) / 2
				x[i*nstate+j] = v
				x[j*nstate+i] = v
			}
		}
	}

	for i := 0; i < nstate; i++ {
		row := x[i*nstate : (i+1)*nstate]
		var z float64
		for _, v := range row {
			z += v
		}
		for j := range row {
			row[j] /= z
		}
	}

	return x
}

// ThreeStateModel returns the standard three state Gaussian test model,
// with well separated means, a common standard deviation, and a random
// reversible transition matrix.
func ThreeStateModel(sigma float64, rng *rand.Rand) *hmmlib.HMM {

	out := hmmlib.NewGaussianModel([]float64{-1, 0, 1}, []float64{sigma, sigma, sigma})

	return hmmlib.NewHMM(3, TransitionMatrix(3, true, rng), out)
}

// RandomModel returns a model with a random reversible transition matrix
// and random emission parameters.  Gaussian models get standard normal
// means and uniform standard deviations; discrete models get Dirichlet
// emission rows over an alphabet with twice as many symbols as states.
func RandomModel(nstate int, form hmmlib.ObsModelType, rng *rand.Rand) *hmmlib.HMM {

	var out hmmlib.OutputModel

	switch form {
	case hmmlib.Gaussian:
		mean := make([]float64, nstate)
		std := make([]float64, nstate)
		for st := 0; st < nstate; st++ {
			mean[st] = rng.NormFloat64()
			std[st] = rng.Float64()
		}
		out = hmmlib.NewGaussianModel(mean, std)
	case hmmlib.Discrete:
		nsym := 2 * nstate
		alpha := make([]float64, nsym)
		for k := range alpha {
			alpha[k] = 1
		}
		b := make([]float64, nstate*nsym)
		dir := distmv.NewDirichlet(alpha, rng)
		for st := 0; st < nstate; st++ {
			dir.Rand(b[st*nsym : (st+1)*nsym])
		}
		out = hmmlib.NewDiscreteModel(nsym, b)
	default:
		panic("unknown observation model")
	}

	return hmmlib.NewHMM(nstate, TransitionMatrix(nstate, true, rng), out)
}

// GenerateObservations simulates ntraj state trajectories of the given
// length from the model, together with the observations they emit.  The
// observation sequences are returned first, the state sequences second.
func GenerateObservations(model *hmmlib.HMM, ntraj, length int, rng *rand.Rand) ([][]float64, [][]int) {

	obs := makeFloatArray(ntraj, length)
	states := makeIntArray(ntraj, length)

	n := model.NState
	tr := model.Trans()

	initcat := distuv.NewCategorical(model.Pi(), rng)
	rows := make([]distuv.Categorical, n)
	for st := 0; st < n; st++ {
		rows[st] = distuv.NewCategorical(tr[st*n:(st+1)*n], rng)
	}

	for p := 0; p < ntraj; p++ {

		st := int(initcat.Rand())
		states[p][0] = st
		for t := 1; t < length; t++ {
			st = int(rows[st].Rand())
			states[p][t] = st
		}

		for t := 0; t < length; t++ {
			obs[p][t] = emit(model, states[p][t], rng)
		}
	}

	return obs, states
}

// emit draws one observed value from the given state's emission
// distribution.
func emit(model *hmmlib.HMM, st int, rng *rand.Rand) float64 {

	switch out := model.Out.(type) {
	case *hmmlib.GaussianModel:
		return distuv.Normal{Mu: out.Mean[st], Sigma: out.Std[st], Src: rng}.Rand()
	case *hmmlib.DiscreteModel:
		row := out.B[st*out.NSymbol : (st+1)*out.NSymbol]
		return distuv.NewCategorical(row, rng).Rand()
	default:
		panic("unknown output model")
	}
}

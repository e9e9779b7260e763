package hmmlib

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BuildInitialModel constructs a first-guess model from the observations,
// for use as the starting point of posterior sampling.  The emission
// parameters come from marginal moments of the pooled data, and the
// transition matrix from hard state assignments under those emissions,
// symmetrized so that the starting matrix is reversible.  The procedure is
// deterministic.
func BuildInitialModel(obs [][]float64, nstate int, form ObsModelType) (*HMM, error) {

	if nstate < 1 {
		return nil, fmt.Errorf("hmmlib: cannot build a model with %d states", nstate)
	}

	var nobs int
	for _, o := range obs {
		nobs += len(o)
	}
	if nobs < nstate {
		return nil, fmt.Errorf("hmmlib: %d observed values cannot support %d states", nobs, nstate)
	}

	var out OutputModel
	var err error
	switch form {
	case Gaussian:
		out = initialGaussian(obs, nstate, nobs)
	case Discrete:
		out, err = initialDiscrete(obs, nstate)
		if err != nil {
			return nil, err
		}
	default:
		panic("unknown observation model")
	}

	return NewHMM(nstate, transFromAssignments(obs, out, nstate), out), nil
}

// initialGaussian splits the pooled, sorted observations into nstate
// blocks of equal mass and uses the moments of each block as that state's
// starting emission parameters.  The states come out ordered by mean.
func initialGaussian(obs [][]float64, nstate, nobs int) *GaussianModel {

	pool := make([]float64, 0, nobs)
	for _, o := range obs {
		pool = append(pool, o...)
	}
	sort.Float64s(pool)

	overall := stat.StdDev(pool, nil)
	if !(overall > sdmin) {
		overall = 1
	}

	mean := make([]float64, nstate)
	std := make([]float64, nstate)
	for st := 0; st < nstate; st++ {

		chunk := pool[st*nobs/nstate : (st+1)*nobs/nstate]

		mean[st] = stat.Mean(chunk, nil)
		if len(chunk) > 1 {
			std[st] = stat.StdDev(chunk, nil)
		}
		if !(std[st] > sdmin) {
			std[st] = overall
		}
	}

	return NewGaussianModel(mean, std)
}

// initialDiscrete derives the symbol alphabet from the data and gives each
// state a contiguous block of symbols holding roughly equal total
// frequency, with a unit pseudocount everywhere so that no emission
// probability starts at zero.
func initialDiscrete(obs [][]float64, nstate int) (*DiscreteModel, error) {

	nsym := 0
	for _, o := range obs {
		for _, y := range o {
			k := int(y)
			if k < 0 || float64(k) != y {
				return nil, fmt.Errorf("hmmlib: observed value %v is not a symbol", y)
			}
			if k+1 > nsym {
				nsym = k + 1
			}
		}
	}

	freq := make([]float64, nsym)
	var total float64
	for _, o := range obs {
		for _, y := range o {
			freq[int(y)]++
			total++
		}
	}

	// Symbol range boundaries: state st owns symbols bnd[st]:bnd[st+1]
	bnd := make([]int, nstate+1)
	bnd[nstate] = nsym
	var cum float64
	st := 1
	for k := 0; k < nsym; k++ {
		cum += freq[k]
		for st < nstate && cum >= float64(st)*total/float64(nstate) {
			bnd[st] = k + 1
			st++
		}
	}
	for ; st < nstate; st++ {
		bnd[st] = nsym
	}

	b := make([]float64, nstate*nsym)
	for st := 0; st < nstate; st++ {
		row := b[st*nsym : (st+1)*nsym]
		for k := 0; k < nsym; k++ {
			row[k] = 1
			if k >= bnd[st] && k < bnd[st+1] {
				row[k] += freq[k]
			}
		}
		normalizeSum(row, 1/float64(nsym))
	}

	return NewDiscreteModel(nsym, b), nil
}

// transFromAssignments assigns every observation to its highest-likelihood
// state, counts the within-sequence transitions between assigned states,
// and returns the transition matrix of the symmetrized, smoothed counts.
// Matrices of this form are reversible, so the starting point already
// satisfies the constraint imposed during sampling.
func transFromAssignments(obs [][]float64, out OutputModel, nstate int) []float64 {

	cnt := make([]float64, nstate*nstate)
	wk := make([]float64, nstate)

	for _, o := range obs {
		last := -1
		for _, y := range o {
			for st := 0; st < nstate; st++ {
				wk[st] = out.LogProb(st, y)
			}
			st := argmax(wk)
			if last >= 0 {
				cnt[last*nstate+st]++
			}
			last = st
		}
	}

	tr := make([]float64, nstate*nstate)
	for i := 0; i < nstate; i++ {
		for j := 0; j < nstate; j++ {
			tr[i*nstate+j] = cnt[i*nstate+j] + cnt[j*nstate+i] + 1
		}
		normalizeSum(tr[i*nstate:(i+1)*nstate], 1/float64(nstate))
	}

	return tr
}

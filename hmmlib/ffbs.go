package hmmlib

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDegenerateLikelihood indicates that at some time step, every
	// state assigns zero probability to the observed value, so no
	// trajectory through the model can explain the data.
	ErrDegenerateLikelihood = errors.New("hmmlib: no state has positive likelihood")

	// ErrInvalidProbability indicates that a probability vector became
	// NaN or infinite before a categorical draw.
	ErrInvalidProbability = errors.New("hmmlib: invalid probability vector")
)

// SampleTrajectory draws a hidden state trajectory for one observation
// sequence from its exact joint posterior under the given model, using
// forward filtering followed by backward sampling.  The model is not
// modified.  Draws are taken from rng, so two calls with equal models,
// observations, and generator states return identical trajectories.
func SampleTrajectory(hmm *HMM, obs []float64, rng *rand.Rand) ([]int, error) {

	nt := len(obs)
	if nt == 0 {
		return []int{}, nil
	}
	ns := hmm.NState

	// Forward pass: la[t*ns+j] accumulates the joint log probability of
	// the observations through time t and state j at time t.
	la := make([]float64, nt*ns)
	wk := make([]float64, ns)

	for st := 0; st < ns; st++ {
		la[st] = hmm.logPi[st] + hmm.LogEmissionProb(st, obs[0])
	}
	if math.IsInf(floats.Max(la[0:ns]), -1) {
		return nil, fmt.Errorf("time step 0: %w", ErrDegenerateLikelihood)
	}

	for t := 1; t < nt; t++ {

		j0 := (t - 1) * ns
		j1 := t * ns

		for st2 := 0; st2 < ns; st2++ {
			for st1 := 0; st1 < ns; st1++ {
				wk[st1] = la[j0+st1] + hmm.logTrans[st1*ns+st2]
			}
			la[j1+st2] = logSumExp(wk) + hmm.LogEmissionProb(st2, obs[t])
		}

		if math.IsInf(floats.Max(la[j1:j1+ns]), -1) {
			return nil, fmt.Errorf("time step %d: %w", t, ErrDegenerateLikelihood)
		}
	}

	// Backward pass: draw the final state from the filtered distribution,
	// then walk backward conditioning on the successor state.
	traj := make([]int, nt)

	copy(wk, la[(nt-1)*ns:nt*ns])
	if err := toProbs(wk); err != nil {
		return nil, fmt.Errorf("time step %d: %w", nt-1, err)
	}
	traj[nt-1] = genDiscrete(wk, rng)

	for t := nt - 2; t >= 0; t-- {

		j0 := t * ns
		for st := 0; st < ns; st++ {
			wk[st] = la[j0+st] + hmm.logTrans[st*ns+traj[t+1]]
		}

		if err := toProbs(wk); err != nil {
			return nil, fmt.Errorf("time step %d: %w", t, err)
		}
		traj[t] = genDiscrete(wk, rng)
	}

	return traj, nil
}

// toProbs converts the log-scale weights in x to normalized probabilities
// in place.  Fails if the weights carry no mass, or if the normalized
// vector contains a NaN or infinity.
func toProbs(x []float64) error {

	if math.IsInf(floats.Max(x), -1) {
		return ErrDegenerateLikelihood
	}

	normalizeMaxLog(x)
	normalizeSum(x, 0)

	for _, p := range x {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return ErrInvalidProbability
		}
	}

	return nil
}

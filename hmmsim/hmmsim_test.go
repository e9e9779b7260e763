package hmmsim

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/bhmm/hmmlib"
)

// stationaryPower finds the stationary distribution of tr by iterating
// pi <- pi T from the uniform distribution.
func stationaryPower(tr []float64, n int) []float64 {

	pi := make([]float64, n)
	nx := make([]float64, n)
	for i := range pi {
		pi[i] = 1 / float64(n)
	}

	for k := 0; k < 1000; k++ {
		for j := 0; j < n; j++ {
			nx[j] = 0
			for i := 0; i < n; i++ {
				nx[j] += pi[i] * tr[i*n+j]
			}
		}
		copy(pi, nx)
	}

	return pi
}

func TestTransitionMatrix(t *testing.T) {

	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{1, 2, 4, 6} {
		for _, rev := range []bool{false, true} {

			tr := TransitionMatrix(n, rev, rng)
			if len(tr) != n*n {
				t.Fatalf("n=%d: matrix has %d elements", n, len(tr))
			}

			for i := 0; i < n; i++ {
				row := tr[i*n : (i+1)*n]
				if math.Abs(floats.Sum(row)-1) > 1e-12 {
					t.Errorf("n=%d rev=%v: row %d sums to %f", n, rev, i, floats.Sum(row))
				}
				for j, v := range row {
					if v < 0 || v > 1 || math.IsNaN(v) {
						t.Errorf("n=%d rev=%v: invalid probability %f at %d,%d", n, rev, v, i, j)
					}
				}
			}

			if rev && n > 1 {
				pi := stationaryPower(tr, n)
				for i := 0; i < n; i++ {
					for j := 0; j < n; j++ {
						d := pi[i]*tr[i*n+j] - pi[j]*tr[j*n+i]
						if math.Abs(d) > 1e-8 {
							t.Errorf("n=%d: detailed balance violated at %d,%d by %e", n, i, j, d)
						}
					}
				}
			}
		}
	}
}

func TestThreeStateModel(t *testing.T) {

	rng := rand.New(rand.NewSource(2))
	model := ThreeStateModel(0.1, rng)

	if model.NState != 3 {
		t.Errorf("got %d states, want 3", model.NState)
	}

	out := model.Out.(*hmmlib.GaussianModel)
	if !floats.Equal(out.Mean, []float64{-1, 0, 1}) {
		t.Errorf("means %v, want [-1 0 1]", out.Mean)
	}
	for st, sd := range out.Std {
		if sd != 0.1 {
			t.Errorf("state %d: standard deviation %f, want 0.1", st, sd)
		}
	}
}

func TestRandomModel(t *testing.T) {

	rng := rand.New(rand.NewSource(3))

	for _, n := range []int{1, 2, 4} {

		gm := RandomModel(n, hmmlib.Gaussian, rng)
		out := gm.Out.(*hmmlib.GaussianModel)
		for st := 0; st < n; st++ {
			if math.IsNaN(out.Mean[st]) || out.Std[st] < 0 || out.Std[st] > 1 {
				t.Errorf("n=%d state %d: invalid parameters %f, %f", n, st, out.Mean[st], out.Std[st])
			}
		}

		dm := RandomModel(n, hmmlib.Discrete, rng)
		dout := dm.Out.(*hmmlib.DiscreteModel)
		if dout.NSymbol != 2*n {
			t.Errorf("n=%d: alphabet size %d, want %d", n, dout.NSymbol, 2*n)
		}
		for st := 0; st < n; st++ {
			row := dout.B[st*dout.NSymbol : (st+1)*dout.NSymbol]
			if math.Abs(floats.Sum(row)-1) > 1e-8 {
				t.Errorf("n=%d state %d: emission probabilities sum to %f", n, st, floats.Sum(row))
			}
		}
	}
}

func TestGenerateObservations(t *testing.T) {

	rng := rand.New(rand.NewSource(4))

	model := ThreeStateModel(0.2, rng)
	obs, states := GenerateObservations(model, 5, 100, rng)

	if len(obs) != 5 || len(states) != 5 {
		t.Fatalf("got %d, %d sequences, want 5", len(obs), len(states))
	}
	for p := 0; p < 5; p++ {
		if len(obs[p]) != 100 || len(states[p]) != 100 {
			t.Fatalf("sequence %d has lengths %d, %d", p, len(obs[p]), len(states[p]))
		}
		for j := 0; j < 100; j++ {
			if states[p][j] < 0 || states[p][j] >= 3 {
				t.Errorf("sequence %d: state %d out of range", p, states[p][j])
			}
			if math.IsNaN(obs[p][j]) || math.IsInf(obs[p][j], 0) {
				t.Errorf("sequence %d: invalid observation %f", p, obs[p][j])
			}
		}
	}

	dm := RandomModel(2, hmmlib.Discrete, rng)
	dobs, _ := GenerateObservations(dm, 3, 50, rng)
	nsym := dm.Out.(*hmmlib.DiscreteModel).NSymbol
	for p := range dobs {
		for _, y := range dobs[p] {
			k := int(y)
			if float64(k) != y || k < 0 || k >= nsym {
				t.Errorf("sequence %d: observed value %v is not in the alphabet", p, y)
			}
		}
	}
}

func TestGenerateDeterminism(t *testing.T) {

	gen := func() [][]float64 {
		rng := rand.New(rand.NewSource(5))
		model := ThreeStateModel(0.25, rng)
		obs, _ := GenerateObservations(model, 3, 40, rng)
		return obs
	}

	a := gen()
	b := gen()
	for p := range a {
		if !floats.Equal(a[p], b[p]) {
			t.Errorf("sequence %d differs between identically seeded runs", p)
		}
	}
}

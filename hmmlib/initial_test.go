package hmmlib

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func TestInitialGaussian(t *testing.T) {

	rng := rand.New(rand.NewSource(3))

	// Three well separated clusters, each holding a third of the data
	centers := []float64{-5, 0, 5}
	var obs [][]float64
	for p := 0; p < 5; p++ {
		o := make([]float64, 60)
		for j := range o {
			o[j] = centers[(p+j)%3] + 0.2*rng.NormFloat64()
		}
		obs = append(obs, o)
	}

	model, err := BuildInitialModel(obs, 3, Gaussian)
	if err != nil {
		t.Fatalf("%v", err)
	}

	out := model.Out.(*GaussianModel)
	for st := 0; st < 3; st++ {
		if math.Abs(out.Mean[st]-centers[st]) > 0.5 {
			t.Errorf("state %d: mean %f, want near %f", st, out.Mean[st], centers[st])
		}
		if out.Std[st] <= 0 {
			t.Errorf("state %d: standard deviation %f", st, out.Std[st])
		}
		if st > 0 && out.Mean[st] < out.Mean[st-1] {
			t.Errorf("means are not ascending: %v", out.Mean)
		}
	}

	tr := model.Trans()
	for i := 0; i < 3; i++ {
		row := tr[i*3 : (i+1)*3]
		if math.Abs(floats.Sum(row)-1) > 1e-12 {
			t.Errorf("row %d sums to %f", i, floats.Sum(row))
		}
		for _, v := range row {
			if v <= 0 {
				t.Errorf("row %d contains nonpositive probability %f", i, v)
			}
		}
	}

	if math.Abs(floats.Sum(model.Pi())-1) > 1e-8 {
		t.Errorf("initial distribution sums to %f", floats.Sum(model.Pi()))
	}

	// The heuristic is deterministic
	model2, err := BuildInitialModel(obs, 3, Gaussian)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !floats.Equal(model.Trans(), model2.Trans()) {
		t.Errorf("repeated construction produced different transition matrices")
	}
	if !floats.Equal(out.Mean, model2.Out.(*GaussianModel).Mean) {
		t.Errorf("repeated construction produced different means")
	}
}

func TestInitialDiscrete(t *testing.T) {

	rng := rand.New(rand.NewSource(4))

	var obs [][]float64
	for p := 0; p < 4; p++ {
		o := make([]float64, 100)
		for j := range o {
			o[j] = float64(rng.Intn(4))
		}
		obs = append(obs, o)
	}

	model, err := BuildInitialModel(obs, 2, Discrete)
	if err != nil {
		t.Fatalf("%v", err)
	}

	out := model.Out.(*DiscreteModel)
	if out.NSymbol != 4 {
		t.Errorf("alphabet size %d, want 4", out.NSymbol)
	}
	for st := 0; st < 2; st++ {
		row := out.B[st*4 : (st+1)*4]
		if math.Abs(floats.Sum(row)-1) > 1e-12 {
			t.Errorf("state %d: emission probabilities sum to %f", st, floats.Sum(row))
		}
		for _, v := range row {
			if v <= 0 {
				t.Errorf("state %d: nonpositive emission probability %f", st, v)
			}
		}
	}

	tr := model.Trans()
	for i := 0; i < 2; i++ {
		if math.Abs(floats.Sum(tr[i*2:(i+1)*2])-1) > 1e-12 {
			t.Errorf("row %d of transition matrix does not sum to 1", i)
		}
	}
}

func TestInitialErrors(t *testing.T) {

	if _, err := BuildInitialModel([][]float64{{0, 1, -1}}, 2, Discrete); err == nil {
		t.Errorf("negative symbol accepted")
	}

	if _, err := BuildInitialModel([][]float64{{0, 1, 0.5}}, 2, Discrete); err == nil {
		t.Errorf("fractional symbol accepted")
	}

	if _, err := BuildInitialModel([][]float64{{1, 2}}, 5, Gaussian); err == nil {
		t.Errorf("more states than observations accepted")
	}

	if _, err := BuildInitialModel([][]float64{{1, 2, 3}}, 0, Gaussian); err == nil {
		t.Errorf("zero states accepted")
	}
}

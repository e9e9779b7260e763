package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/bhmm/hmmlib"
	"github.com/kshedden/bhmm/hmmsim"
)

var (
	msglogger *log.Logger
	parlogger *log.Logger
)

// setupLog creates the message and parameter log files.
func setupLog(logname string) {

	fid, err := os.Create(logname + "_msg.log")
	if err != nil {
		panic(err)
	}
	msglogger = log.New(fid, "", log.Ltime)

	fid, err = os.Create(logname + "_par.log")
	if err != nil {
		panic(err)
	}
	parlogger = log.New(fid, "", 0)
}

// buildSystem returns the model generating the synthetic data: a
// diagonally dominant transition matrix whose uniform off-diagonal
// structure is symmetric, hence reversible, and well separated emission
// distributions.
func buildSystem(nstate int, form hmmlib.ObsModelType, sigma float64) *hmmlib.HMM {

	tr := make([]float64, nstate*nstate)
	for i := 0; i < nstate; i++ {
		for j := 0; j < nstate; j++ {
			if i == j {
				tr[i*nstate+j] = 0.8
			} else {
				tr[i*nstate+j] = 0.2 / float64(nstate-1)
			}
		}
	}
	if nstate == 1 {
		tr[0] = 1
	}

	var out hmmlib.OutputModel
	switch form {
	case hmmlib.Gaussian:
		mean := make([]float64, nstate)
		std := make([]float64, nstate)
		for i := 0; i < nstate; i++ {
			mean[i] = float64(i)
			std[i] = sigma
		}
		out = hmmlib.NewGaussianModel(mean, std)
	case hmmlib.Discrete:
		b := make([]float64, nstate*nstate)
		for i := 0; i < nstate; i++ {
			for j := 0; j < nstate; j++ {
				if i == j {
					b[i*nstate+j] = 0.8
				} else {
					b[i*nstate+j] = 0.2 / float64(nstate-1)
				}
			}
		}
		if nstate == 1 {
			b[0] = 1
		}
		out = hmmlib.NewDiscreteModel(nstate, b)
	default:
		panic("unknown observation model")
	}

	return hmmlib.NewHMM(nstate, tr, out)
}

// meanModel averages the transition matrices and emission parameters over
// the sampled models.
func meanModel(models []*hmmlib.HMM) *hmmlib.HMM {

	nstate := models[0].NState
	scale := 1 / float64(len(models))

	tr := make([]float64, nstate*nstate)
	for _, m := range models {
		floats.Add(tr, m.Trans())
	}
	floats.Scale(scale, tr)

	var out hmmlib.OutputModel
	switch first := models[0].Out.(type) {
	case *hmmlib.GaussianModel:
		mean := make([]float64, nstate)
		std := make([]float64, nstate)
		for _, m := range models {
			o := m.Out.(*hmmlib.GaussianModel)
			floats.Add(mean, o.Mean)
			floats.Add(std, o.Std)
		}
		floats.Scale(scale, mean)
		floats.Scale(scale, std)
		out = hmmlib.NewGaussianModel(mean, std)
	case *hmmlib.DiscreteModel:
		b := make([]float64, nstate*first.NSymbol)
		for _, m := range models {
			floats.Add(b, m.Out.(*hmmlib.DiscreteModel).B)
		}
		floats.Scale(scale, b)
		out = hmmlib.NewDiscreteModel(first.NSymbol, b)
	}

	return hmmlib.NewHMM(nstate, tr, out)
}

// report writes the per-sequence agreement between the trajectories of
// the last sampled model and the states that generated the data.
func report(model *hmmlib.HMM, truth [][]int) {

	parlogger.Printf("\nState disagreement in the last sampled model:\n")

	var e, n int
	for p := range truth {
		q, m := hmmlib.CompareStates(model.StateTraj[p], truth[p])
		parlogger.Printf("%d %d/%d\n", p, q, m)
		e += q
		n += m
	}

	parlogger.Printf("%d/%d total disagreements\n", e, n)
}

func main() {

	nstate := flag.Int("nstate", 3, "Number of states")
	ntraj := flag.Int("ntraj", 10, "Number of observation sequences")
	ntime := flag.Int("ntime", 500, "Number of time points per sequence")
	obsmodel := flag.String("obsmodel", "gaussian", "Observation distribution")
	sigma := flag.Float64("sigma", 0.25, "Emission SD for the Gaussian generating model")
	nsamples := flag.Int("nsamples", 100, "Number of posterior samples")
	nburn := flag.Int("nburn", 100, "Number of burn-in updates")
	nthin := flag.Int("nthin", 1, "Number of updates between retained samples")
	transteps := flag.Int("transteps", 1000, "Transition matrix sampling steps per update")
	seed := flag.Uint64("seed", 0, "Random seed, taken from the clock if zero")
	logname := flag.String("logname", "bhmm", "Prefix of log file")
	flag.Parse()

	setupLog(*logname)

	var form hmmlib.ObsModelType
	switch *obsmodel {
	case "gaussian":
		form = hmmlib.Gaussian
	case "discrete":
		form = hmmlib.Discrete
	default:
		fmt.Fprintf(os.Stderr, "unknown obsmodel '%s'\n", *obsmodel)
		os.Exit(1)
	}

	sd := *seed
	if sd == 0 {
		sd = uint64(time.Now().UTC().UnixNano())
	}
	rng := rand.New(rand.NewSource(sd))

	truth := buildSystem(*nstate, form, *sigma)
	obs, states := hmmsim.GenerateObservations(truth, *ntraj, *ntime, rng)

	truth.WriteSummary(parlogger, nil, "Generating model:")

	sampler, err := hmmlib.NewSampler(obs, *nstate)
	if err != nil {
		msglogger.Printf("%v\n", err)
		os.Exit(1)
	}
	sampler.ObsModelForm = form
	sampler.TransSteps = *transteps
	sampler.Seed = sd + 1
	sampler.Verbose = true
	sampler.SetLogger(msglogger)

	models, err := sampler.Sample(*nsamples, *nburn, *nthin, true)
	if err != nil {
		msglogger.Printf("sampling failed: %v\n", err)
		os.Exit(1)
	}

	if len(models) == 0 {
		msglogger.Printf("no models sampled\n")
		return
	}

	meanModel(models).WriteSummary(parlogger, nil, "Posterior means:")

	report(models[len(models)-1], states)
}

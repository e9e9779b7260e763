package hmmlib

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/schollz/progressbar"
	"golang.org/x/exp/rand"

	"github.com/kshedden/bhmm/msm"
)

var (
	// ErrNoObservations indicates that a sampler was constructed with an
	// empty observation set.
	ErrNoObservations = errors.New("hmmlib: no observation sequences")

	// ErrNonReversible indicates a request for transition matrix
	// sampling without the detailed balance restriction, which is not
	// implemented.
	ErrNonReversible = errors.New("hmmlib: non-reversible transition matrix sampling is not implemented")
)

// Sampler draws models from the Bayesian posterior of a hidden Markov
// model given a fixed set of observation sequences, using block Gibbs
// sampling.  Each update alternates between drawing hidden state
// trajectories exactly, drawing emission parameters given the state
// assignments, and drawing a reversible transition matrix given the
// transition counts.
type Sampler struct {

	// Restrict transition matrix sampling to matrices satisfying
	// detailed balance.  Sampling without the restriction is not
	// implemented, so setting this to false makes every update fail.
	Reversible bool

	// Number of transition matrix sampling steps per model update
	TransSteps int

	// The form of the observation distribution, used when building a
	// starting model from the data
	ObsModelForm ObsModelType

	// Optional starting model, replacing the heuristic fit to the
	// observations.  It is copied before use, so the caller's model is
	// never modified.
	Initial *HMM

	// Seed for the random streams
	Seed uint64

	// Report progress while sampling
	Verbose bool

	// The observation sequences
	obs [][]float64

	// Number of states
	nstate int

	// The model being sampled
	model *HMM

	// One stream per observation sequence, plus one for the parameter
	// updates
	rngs []*rand.Rand
	rng  *rand.Rand

	// Write log messages here
	msglogger *log.Logger

	initialized bool

	mut     sync.Mutex
	running bool
}

// NewSampler returns a posterior sampler for a hidden Markov model with
// nstate states, given one or more observation sequences.  The
// observations are copied, so the caller's slices are not retained.
// Configuration fields may be set before the first call to Sample.
func NewSampler(observations [][]float64, nstate int) (*Sampler, error) {

	if len(observations) == 0 {
		return nil, ErrNoObservations
	}
	if nstate < 1 {
		return nil, fmt.Errorf("hmmlib: cannot sample a model with %d states", nstate)
	}

	obs := make([][]float64, len(observations))
	for p, o := range observations {
		if len(o) == 0 {
			return nil, fmt.Errorf("hmmlib: observation sequence %d is empty", p)
		}
		obs[p] = append([]float64(nil), o...)
	}

	return &Sampler{
		Reversible:   true,
		TransSteps:   1000,
		ObsModelForm: Gaussian,
		obs:          obs,
		nstate:       nstate,
	}, nil
}

// SetLogger provides a logger that will be used to write log messages.
func (s *Sampler) SetLogger(lg *log.Logger) {
	s.msglogger = lg
}

// Initialize prepares the sampler to run: the logger, the random streams,
// and the starting model.  The first call to Sample runs it automatically;
// calling it again has no effect.
func (s *Sampler) Initialize() error {

	if s.initialized {
		return nil
	}

	if s.msglogger == nil {
		if s.Verbose {
			s.msglogger = log.New(os.Stderr, "", log.Ltime)
		} else {
			s.msglogger = log.New(io.Discard, "", 0)
		}
	}

	s.rng = rand.New(rand.NewSource(s.Seed))
	s.rngs = make([]*rand.Rand, len(s.obs))
	for p := range s.rngs {
		// Independent stream per sequence, seeded from the base seed
		// and the sequence position
		s.rngs[p] = rand.New(rand.NewSource(s.Seed + uint64(p) + 1))
	}

	if s.Initial != nil {
		if s.Initial.NState != s.nstate {
			return fmt.Errorf("hmmlib: initial model has %d states, want %d", s.Initial.NState, s.nstate)
		}
		if s.Initial.Out == nil {
			return fmt.Errorf("hmmlib: initial model has no output model")
		}
		s.model = s.Initial.Copy()
	} else {
		model, err := BuildInitialModel(s.obs, s.nstate, s.ObsModelForm)
		if err != nil {
			return err
		}
		s.model = model
	}

	var nobs int
	for _, o := range s.obs {
		nobs += len(o)
	}
	s.msglogger.Printf("%d observation sequences\n", len(s.obs))
	s.msglogger.Printf("%d observed values\n", nobs)
	s.msglogger.Printf("%d states\n", s.nstate)

	s.initialized = true

	return nil
}

// Sample runs the Gibbs sampler and returns nsamples models drawn from
// the posterior: nburn updates are applied and discarded, then each
// retained model snapshot is separated from the previous one by nthin
// updates.  The snapshots are deep copies and stay valid across later
// calls.  Hidden state trajectories are cleared from the snapshots unless
// keepTraj is set.  On any failure the whole run is abandoned and no
// models are returned.
func (s *Sampler) Sample(nsamples, nburn, nthin int, keepTraj bool) ([]*HMM, error) {

	if err := s.Initialize(); err != nil {
		return nil, err
	}

	s.mut.Lock()
	if s.running {
		s.mut.Unlock()
		panic("hmmlib: Sample called while a run is in progress")
	}
	s.running = true
	s.mut.Unlock()
	defer func() {
		s.mut.Lock()
		s.running = false
		s.mut.Unlock()
	}()

	if nsamples < 0 {
		nsamples = 0
	}
	if nburn < 0 {
		nburn = 0
	}
	if nthin < 1 {
		nthin = 1
	}

	s.msglogger.Printf("Drawing %d models with %d burn-in updates and thinning %d...\n",
		nsamples, nburn, nthin)

	var bar *progressbar.ProgressBar
	if total := nburn + nsamples*nthin; s.Verbose && total > 0 {
		bar = progressbar.New(total)
	}

	for it := 0; it < nburn; it++ {
		s.msglogger.Printf("Burn-in   %8d / %8d\n", it+1, nburn)
		if err := s.update(); err != nil {
			return nil, err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	models := make([]*HMM, 0, nsamples)
	for it := 0; it < nsamples; it++ {
		s.msglogger.Printf("Iteration %8d / %8d\n", it+1, nsamples)
		for k := 0; k < nthin; k++ {
			if err := s.update(); err != nil {
				return nil, err
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}

		model := s.model.Copy()
		if !keepTraj {
			model.StateTraj = nil
		}
		models = append(models, model)
	}

	return models, nil
}

// update applies one sweep of the block Gibbs sampler: new hidden state
// trajectories given the model, new emission parameters given the state
// assignments, and a new transition matrix given the transition counts.
func (s *Sampler) update() error {

	if err := s.updateTrajectories(); err != nil {
		return err
	}

	s.updateEmissions()

	return s.updateTrans()
}

// updateTrajectories draws a new hidden state trajectory for every
// observation sequence from its exact conditional posterior.  The model
// parameters are fixed while this runs, so the sequences are independent
// and are processed concurrently, each drawing from its own stream.
func (s *Sampler) updateTrajectories() error {

	if len(s.model.StateTraj) != len(s.obs) {
		s.model.StateTraj = make([][]int, len(s.obs))
	}

	errs := make([]error, len(s.obs))

	var wg sync.WaitGroup
	for p := range s.obs {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			traj, err := SampleTrajectory(s.model, s.obs[p], s.rngs[p])
			if err != nil {
				errs[p] = fmt.Errorf("sequence %d: %w", p, err)
				return
			}
			s.model.StateTraj[p] = traj
		}(p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// updateEmissions redraws the emission parameters from their conditional
// posterior, given the observations grouped by the newly drawn state
// assignments.
func (s *Sampler) updateEmissions() {

	byState := make([][]float64, s.nstate)
	for st := 0; st < s.nstate; st++ {
		byState[st] = s.model.ObservationsInState(s.obs, st)
	}

	s.model.Out.Resample(byState, s.rng)
}

// updateTrans redraws the transition matrix from its conditional
// posterior given the transition counts of the current trajectories.
func (s *Sampler) updateTrans() error {

	if !s.Reversible {
		return fmt.Errorf("transition matrix update: %w", ErrNonReversible)
	}

	cnt := s.model.CountMatrix()
	tr := msm.NewSampler(cnt, s.nstate, s.rng).Sample(s.TransSteps)
	s.model.SetTrans(tr)

	return nil
}

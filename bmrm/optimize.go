// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bmrm implements bundle methods for regularized risk minimization.
//
// The optimizer minimizes 𝜆½‖𝐰‖₂² + 𝐿(𝐰) where the convex objective 𝐿 is
// accessed only through a value-and-subgradient oracle, as in max-margin
// and structured hinge training. Each iteration tightens a polyhedral
// lower bound of 𝐿 with one cutting plane and re-solves a small quadratic
// program over the bound to obtain the next candidate point.
//
// # Reference
//
// C.H. Teo, S.V.N. Vishwanathan, A. Smola, Q.V. Le:
// "Bundle Methods for Regularized Risk Minimization". JMLR 11, 2010.
package bmrm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/bundle/smoqp"
	"github.com/curioloop/bundle/solver"
)

// Status is the outcome of one optimization run.
type Status int

const (
	// ReachedMinGap the minimal optimization gap was reached
	ReachedMinGap Status = iota
	// ReachedSteps the requested number of steps was exceeded
	ReachedSteps
	// Error something went wrong
	Error
)

func (s Status) String() string {
	switch s {
	case ReachedMinGap:
		return "ReachedMinGap"
	case ReachedSteps:
		return "ReachedSteps"
	default:
		return "Error"
	}
}

// Evaluation is the oracle: given 𝐰 it stores a subgradient of 𝐿 at 𝐰
// into g (same dimension as 𝐰) and returns 𝐿(𝐰). It must be deterministic
// per input for reproducible convergence behavior and is called exactly
// once per iteration.
type Evaluation func(w []float64, g []float64) (f float64)

// Parameter holds the knobs of the bundle method.
type Parameter struct {
	// Lambda is the regularizer weight in 𝜆½‖𝐰‖₂². Zero means 1.0.
	Lambda float64
	// MinGap is the convergence threshold on the gap 𝛆. Zero means 1e-5.
	MinGap float64
	// Steps is the maximal number of iterations to perform, 0 = no limit.
	Steps int
	// BadSolves is the number of consecutive uncertified QP solves
	// tolerated before the run aborts with Error. Zero means 10.
	BadSolves int
}

// Problem specifies a regularized risk minimization problem.
type Problem struct {
	N      int        // The dimension of the weight vector
	Oracle Evaluation // Objective value 𝐿(𝐰) and subgradient
	Param  Parameter  // Stop conditions and regularization
	// Backend optionally allocates the QP backend.
	// The default is the smoqp epigraph solver.
	Backend func() (solver.Backend, error)
	Logger  *Logger
}

type bundleSpec struct {
	n       int
	param   Parameter
	oracle  Evaluation
	backend func() (solver.Backend, error)
	logger  *Logger
}

// New creates a new bundle optimizer for given problem.
func (p *Problem) New() (optimizer *Optimizer, err error) {

	param := p.Param
	if param.Lambda == 0 {
		param.Lambda = 1.0
	}
	if param.MinGap == 0 {
		param.MinGap = 1e-5
	}
	if param.BadSolves == 0 {
		param.BadSolves = 10
	}

	backend := p.Backend
	if backend == nil {
		backend = func() (solver.Backend, error) { return smoqp.New(), nil }
	}

	switch {
	case p.N <= 0:
		err = errors.New("problem dimension must greater than 0")
	case p.Oracle == nil:
		err = errors.New("oracle function is required")
	case param.Lambda < 0:
		err = errors.New("regularizer weight must not less than 0")
	case param.MinGap < 0:
		err = errors.New("minimal gap must not less than 0")
	case param.Steps < 0:
		err = errors.New("step limit must not less than 0")
	case param.BadSolves < 0:
		err = errors.New("bad solve limit must not less than 0")
	}
	if err != nil {
		return
	}

	optimizer = &Optimizer{
		bundleSpec: bundleSpec{
			n:       p.N,
			param:   param,
			oracle:  p.Oracle,
			backend: backend,
			logger:  p.Logger,
		},
	}
	return
}

// Optimizer implemented using the bundle method.
// The QP backend is allocated on first use and reused by later runs.
type Optimizer struct {
	bundleSpec
	collector Collector
	solver    solver.Backend
}

// Result contains the final result of one optimization run.
type Result struct {
	OK       bool    // Whether the min-gap criterion was met.
	MinValue float64 // Smallest observed value of 𝜆½‖𝐰‖₂² + 𝐿(𝐰).
	Lower    float64 // Final lower bound 𝚖𝚒𝚗 𝜆½‖𝐰‖₂² + ℒ(𝐰).
	Gap      float64 // Final gap 𝛆 = MinValue - Lower.
	Summary          // Optimization summary.
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Status    Status // Final status after optimization.
	NumIter   int    // Number of iterations performed.
	BadSolves int    // Total number of uncertified QP solves.
}

// Fit runs the bundle method on the weight vector w, which is mutated in
// place: on return it holds the last QP candidate point. The caller must
// not mutate w concurrently. Fit panics when len(w) does not match the
// problem dimension.
//
//	 1. t = 0
//	 2. t++
//	 3. compute 𝐚ₜ = ∂𝐿(𝐰ₜ₋₁)/∂𝐰
//	 4. compute 𝐛ₜ = 𝐿(𝐰ₜ₋₁) - ⟨𝐰ₜ₋₁,𝐚ₜ⟩
//	 5. ℒₜ(𝐰) = 𝚖𝚊𝚡ᵢ ⟨𝐰,𝐚ᵢ⟩ + 𝐛ᵢ
//	 6. 𝐰ₜ = 𝚊𝚛𝚐𝚖𝚒𝚗 𝜆½‖𝐰‖₂² + ℒₜ(𝐰)
//	 7. 𝛆ₜ = 𝚖𝚒𝚗ᵢ [𝜆½‖𝐰ᵢ‖₂² + 𝐿(𝐰ᵢ)] - [𝜆½‖𝐰ₜ‖₂² + ℒₜ(𝐰ₜ)]
//	 8. if 𝛆ₜ > 𝛆, goto 2
//	 9. return 𝐰ₜ
func (o *Optimizer) Fit(w []float64) *Result {

	if len(w) != o.n {
		panic("initial w dimension not match spec")
	}

	log := o.logger
	res := &Result{MinValue: math.Inf(1), Lower: math.Inf(-1), Gap: math.Inf(1)}
	fail := func(err error) *Result {
		if log.enable(LogLast) {
			log.log("[bmrm] %v\n", err)
		}
		res.Status = Error
		return res
	}

	if err := o.setupQP(); err != nil {
		return fail(err)
	}
	o.collector.Reset()

	minValue := math.Inf(1)
	lower, gap := math.Inf(-1), math.Inf(1)

	var status Status
	t, bad, totalBad := 0, 0, 0
	grad := make([]float64, o.n)
	wPrev := make([]float64, o.n)

	for {
		t++
		copy(wPrev, w)

		// value and subgradient of 𝐿 at the current 𝐰
		L, err := o.eval(wPrev, grad)
		if err != nil {
			res.NumIter, res.BadSolves = t, totalBad
			return fail(err)
		}

		// update smallest observed value of regularized 𝐿
		minValue = math.Min(minValue, L+0.5*o.param.Lambda*floats.Dot(wPrev, wPrev))

		// hyperplane offset 𝐛ₜ = 𝐿(𝐰ₜ₋₁) - ⟨𝐰ₜ₋₁,𝐚ₜ⟩
		b := L - floats.Dot(wPrev, grad)
		o.collector.Add(grad, b)
		if log.enable(LogTrace) {
			log.log("[bmrm] adding hyperplane %v·w + %v\n", grad, b)
		}

		// update 𝐰 and the minimal value of the lower bound
		if err := o.solver.SetConstraints(o.collector.Constraints()); err != nil {
			res.NumIter, res.BadSolves = t, totalBad
			return fail(err)
		}
		x, val, msg, optimal := o.solver.Solve()
		if len(x) < o.n {
			// a truncated solution cannot update the weights, distrust
			// it like an uncertified solve
			optimal = false
			msg = fmt.Sprintf("solution has %d of %d variables", len(x), o.n+1)
		}
		if optimal {
			bad = 0
		} else {
			totalBad++
			if log.enable(LogLast) {
				log.log("[bmrm] QP could not be solved to optimality: %s\n", msg)
			}
			if bad++; bad >= o.param.BadSolves {
				status = Error
				break
			}
		}
		if len(x) >= o.n {
			copy(w, x[:o.n])
		}
		lower = val

		gap = minValue - lower
		if log.enable(LogIter) {
			log.log("iteration %5d    min F = %.8e    lower = %.8e    gap = %.3e\n",
				t, minValue, lower, gap)
		}

		if gap < -1e-9*math.Max(1, math.Abs(minValue)) {
			// A gap this far below zero means the oracle or the solver
			// violated its contract. Refuse it as convergence and go on.
			if log.enable(LogLast) {
				log.log("[bmrm] negative gap %.3e at iteration %d\n", gap, t)
			}
		} else if gap <= o.param.MinGap {
			status = ReachedMinGap
			break
		}
		if o.param.Steps > 0 && t >= o.param.Steps {
			status = ReachedSteps
			break
		}
	}

	if log.enable(LogLast) {
		log.log("[bmrm] %s: iterations = %d, gap = %.3e\n", status, t, gap)
	}

	res.OK = status == ReachedMinGap
	res.MinValue, res.Lower, res.Gap = minValue, lower, gap
	res.Summary = Summary{Status: status, NumIter: t, BadSolves: totalBad}
	return res
}

// eval invokes the oracle, converting panics into run errors.
func (o *Optimizer) eval(w, g []float64) (f float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oracle panic: %v", r)
		}
	}()
	if f = o.oracle(w, g); math.IsNaN(f) {
		err = errors.New("oracle returned NaN")
	}
	return
}

// setupQP allocates the backend on first use and installs the program
//
//	𝐰* = 𝚊𝚛𝚐𝚖𝚒𝚗 𝜆½‖𝐰‖₂² + 𝛏 s.t. ⟨𝐰,𝐚ᵢ⟩ + 𝐛ᵢ ≤ 𝛏 ∀i
//
// over n+1 continuous variables (one for each component of 𝐰 and for 𝛏).
func (o *Optimizer) setupQP() error {

	if o.solver == nil {
		s, err := o.backend()
		if err != nil {
			return fmt.Errorf("allocate QP backend: %w", err)
		}
		o.solver = s
	}

	if err := o.solver.Initialize(o.n+1, solver.Continuous); err != nil {
		return err
	}

	obj := solver.NewQuadraticObjective(o.n + 1)
	for i := 0; i < o.n; i++ {
		obj.SetQuadratic(i, i, 0.5*o.param.Lambda)
	}
	obj.Linear[o.n] = 1.0

	// we are done with the objective -- this does not change anymore
	return o.solver.SetObjective(obj)
}

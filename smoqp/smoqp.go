// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package smoqp solves epigraph-form convex quadratic programs
//
//	𝚖𝚒𝚗 ½∑ₖ𝐝ₖ𝐱ₖ² + 𝐜ᵀ𝐱 subject to 𝐆𝐱 ≤ 𝐡
//
// where exactly one variable 𝐱ₑ is an epigraph variable:
//   - 𝐝ₑ = 0 and 𝐜ₑ > 0
//   - 𝐝ₖ > 0 for every other variable
//   - every constraint row carries the same coefficient 𝛄 < 0 on 𝐱ₑ
//
// This is the program a cutting-plane method submits each iteration:
// the epigraph variable 𝛏 = 𝐱ₑ majorizes a polyhedral model and the
// remaining variables carry a diagonal quadratic regularizer.
//
// # Dual
//
// Stationarity of the Lagrangian ℒ(𝐱,𝛍) = ½∑𝐝ₖ𝐱ₖ² + 𝐜ᵀ𝐱 + 𝛍ᵀ(𝐆𝐱-𝐡) gives
//   - 𝐱ₖ = -(𝐜ₖ + (𝐆ᵀ𝛍)ₖ)/𝐝ₖ  (k ≠ e)
//   - 𝛄∑𝛍ⱼ = -𝐜ₑ
//
// so the dual variables live on the scaled simplex { 𝛍 ≥ 0, ∑𝛍ⱼ = s }
// with s = -𝐜ₑ/𝛄 > 0, and the dual objective to maximize is
//
//	𝒈(𝛍) = -½𝛍ᵀ𝐊𝛍 + 𝛃ᵀ𝛍 - ½‖𝐜̃‖₂²
//
// where, with 𝐜̃ₖ = 𝐜ₖ/√𝐝ₖ and scaled rows 𝐀̃ⱼₖ = 𝐆ⱼₖ/√𝐝ₖ (k ≠ e),
//   - 𝐊 = 𝐀̃𝐀̃ᵀ
//   - 𝛃 = -𝐡 - 𝐀̃𝐜̃
//
// # Pairwise coordinate ascent
//
// The simplex constraint is preserved by moving mass between two dual
// coordinates at a time. Each step transfers
//
//	𝛅 = 𝚖𝚒𝚗[ (𝜵ᵢ - 𝜵ₒ)/(𝐊ᵢᵢ + 𝐊ₒₒ - 2𝐊ᵢₒ), 𝛍ₒ ]
//
// from the coordinate o with the smallest gradient among 𝛍ₒ > 0 to the
// coordinate i with the largest gradient, which is the exact maximizer of
// 𝒈 along that direction. The KKT conditions are met when 𝜵ᵢ - 𝜵ₒ ≤ 𝚝𝚘𝚕.
//
// Solve reports the dual value 𝒈(𝛍). Since 𝒈 underestimates the primal
// optimum for every feasible 𝛍, the reported value stays a valid lower
// bound even when the iteration budget runs out before certification.
//
// # Reference
//
// J. Platt: "Sequential Minimal Optimization: A Fast Algorithm for
// Training Support Vector Machines". MSR-TR-98-14, 1998.
package smoqp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/bundle/solver"
)

const (
	zero = 0.0
	one  = 1.0
)

// Solver is a solver.Backend for epigraph-form convex QPs.
// The zero value is ready for use after Initialize.
type Solver struct {
	// Tol is the relative KKT gap below which a solution is certified
	// optimal. Zero means the default 1e-10.
	Tol float64
	// MaxIter bounds the number of pairwise ascent steps per Solve.
	// Zero means the default 1000 + 100·m.
	MaxIter int

	n int // number of variables

	// decomposed objective
	obj  *solver.QuadraticObjective
	epi  int       // index of the epigraph variable
	diag []float64 // 𝐝ₖ (curvature, twice the objective coefficient), 0 at epi
	cbar []float64 // 𝐜̃ₖ = 𝐜ₖ/√𝐝ₖ over non-epigraph variables

	// assembled constraints
	m     int
	gamma float64       // uniform coefficient on the epigraph variable
	rows  *mat.Dense    // m × (n-1) scaled rows 𝐀̃
	h     []float64     // right-hand values in ≤ form
	kmat  *mat.SymDense // 𝐊 = 𝐀̃𝐀̃ᵀ
	beta  []float64

	// dual state, kept across Solve calls for warm starts
	mu []float64
	s  float64
}

// New returns a Solver with default tolerances.
func New() *Solver { return new(Solver) }

// Initialize resets the solver for a program over n continuous variables.
func (s *Solver) Initialize(n int, domain solver.Domain) error {
	if n < 2 {
		return errors.New("epigraph program needs at least 2 variables")
	}
	if domain != solver.Continuous {
		return errors.New("only continuous variables are supported")
	}
	s.n = n
	s.obj = nil
	s.diag, s.cbar = nil, nil
	s.m, s.rows, s.h, s.kmat, s.beta = 0, nil, nil, nil, nil
	s.mu, s.s = nil, zero
	return nil
}

// SetObjective installs and decomposes the objective.
// The objective must minimize a pure-diagonal quadratic with exactly one
// zero-curvature variable, which must carry a positive linear coefficient.
func (s *Solver) SetObjective(obj *solver.QuadraticObjective) error {
	switch {
	case s.n == 0:
		return errors.New("solver not initialized")
	case obj == nil || obj.Len() != s.n:
		return fmt.Errorf("objective dimension not match program: %d", s.n)
	case obj.Sense != solver.Minimize:
		return errors.New("only Minimize objectives are supported")
	case !obj.PureDiagonal():
		return errors.New("cross quadratic terms are not supported")
	}

	epi := -1
	diag := make([]float64, s.n)
	for k := 0; k < s.n; k++ {
		q := obj.Quadratic(k, k)
		switch {
		case q > zero:
			diag[k] = 2 * q
		case q < zero:
			return fmt.Errorf("negative curvature on variable %d", k)
		case epi >= 0:
			return errors.New("more than one zero-curvature variable")
		default:
			epi = k
		}
	}
	if epi < 0 {
		return errors.New("no epigraph variable in objective")
	}
	if obj.Linear[epi] <= zero {
		return errors.New("epigraph variable needs a positive linear coefficient")
	}

	cbar := make([]float64, 0, s.n-1)
	for k, d := range diag {
		if k != epi {
			cbar = append(cbar, obj.Linear[k]/math.Sqrt(d))
		}
	}

	s.obj, s.epi, s.diag, s.cbar = obj, epi, diag, cbar
	return nil
}

// SetConstraints replaces the active constraints and assembles the dual.
// Every row must be an inequality with the same coefficient 𝛄 < 0 on the
// epigraph variable once brought into ≤ form.
func (s *Solver) SetConstraints(cs solver.LinearConstraints) error {
	if s.obj == nil {
		return errors.New("objective not installed")
	}
	if len(cs) == 0 {
		return errors.New("epigraph program is unbounded without constraints")
	}

	m, np := len(cs), s.n-1
	rows := mat.NewDense(m, np, nil)
	h := make([]float64, m)
	gamma := math.NaN()

	for j, c := range cs {
		if len(c.Coefficients) != s.n {
			return fmt.Errorf("constraint %d dimension not match program: %d", j, s.n)
		}
		sign := one
		switch c.Relation {
		case solver.LessEqual:
		case solver.GreaterEqual:
			sign = -one
		default:
			return fmt.Errorf("constraint %d: equality rows are not supported", j)
		}
		g := sign * c.Coefficients[s.epi]
		if g >= zero {
			return fmt.Errorf("constraint %d: epigraph coefficient must be negative", j)
		}
		if j == 0 {
			gamma = g
		} else if g != gamma {
			return fmt.Errorf("constraint %d: epigraph coefficient must be uniform", j)
		}
		h[j] = sign * c.Value
		for k, i := 0, 0; k < s.n; k++ {
			if k != s.epi {
				rows.Set(j, i, sign*c.Coefficients[k]/math.Sqrt(s.diag[k]))
				i++
			}
		}
	}

	// 𝐊 = 𝐀̃𝐀̃ᵀ
	kmat := mat.NewSymDense(m, nil)
	kmat.SymOuterK(one, rows)

	// 𝛃 = -𝐡 - 𝐀̃𝐜̃
	beta := make([]float64, m)
	v := mat.NewVecDense(m, beta)
	v.MulVec(rows, mat.NewVecDense(np, s.cbar))
	for j := range beta {
		beta[j] = -h[j] - beta[j]
	}

	sum := -s.obj.Linear[s.epi] / gamma
	if mu := s.mu; mu != nil && s.s == sum && len(mu) <= m {
		// The dual of the previous solve stays feasible when rows were
		// only appended, which is what a cutting-plane loop produces.
		s.mu = append(make([]float64, 0, m), mu...)
		s.mu = append(s.mu, make([]float64, m-len(mu))...)
	} else {
		s.mu = nil
	}

	s.m, s.gamma, s.rows, s.h, s.kmat, s.beta, s.s = m, gamma, rows, h, kmat, beta, sum
	return nil
}

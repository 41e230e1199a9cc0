// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package smoqp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/bundle/solver"
)

// Solve maximizes the dual by pairwise coordinate ascent and reconstructs
// the primal point from stationarity. The reported value is the dual
// objective 𝒈(𝛍), a lower bound on the primal optimum that matches it
// exactly when ok is true.
func (s *Solver) Solve() (solver.Solution, float64, string, bool) {

	if s.kmat == nil {
		return nil, math.NaN(), "no program installed", false
	}

	m := s.m
	tol := s.Tol
	if tol <= zero {
		tol = 1e-10
	}
	maxIter := s.MaxIter
	if maxIter <= 0 {
		maxIter = 1000 + 100*m
	}

	if s.mu == nil {
		// Cold start: all mass on the strongest row.
		mu := make([]float64, m)
		best := 0
		for j, b := range s.beta {
			if b > s.beta[best] {
				best = j
			}
		}
		mu[best] = s.s
		s.mu = mu
	}
	mu := s.mu

	// 𝜵 = 𝛃 - 𝐊𝛍
	grad := make([]float64, m)
	mat.NewVecDense(m, grad).MulVec(s.kmat, mat.NewVecDense(m, mu))
	for j, g := range grad {
		grad[j] = s.beta[j] - g
	}

	gap, iter, ok := math.Inf(1), 0, false
	for ; iter < maxIter; iter++ {

		// i = 𝚊𝚛𝚐𝚖𝚊𝚡 𝜵ⱼ , o = 𝚊𝚛𝚐𝚖𝚒𝚗 { 𝜵ⱼ : 𝛍ⱼ > 0 }
		i, o := 0, -1
		for j, g := range grad {
			if g > grad[i] {
				i = j
			}
			if mu[j] > zero && (o < 0 || g < grad[o]) {
				o = j
			}
		}

		// KKT: every positive coordinate sits on the common multiplier
		// and no zero coordinate lies above it. The gap is compared on
		// the scale of the multiplier itself, so badly scaled rows that
		// carry no dual mass cannot block certification.
		gap = grad[i] - grad[o]
		scale := math.Max(one, math.Max(math.Abs(grad[i]), math.Abs(grad[o])))
		if gap <= tol*scale {
			ok = true
			break
		}

		// Exact maximizer along 𝐞ᵢ - 𝐞ₒ, clipped to keep 𝛍ₒ ≥ 0.
		d := mu[o]
		if q := s.kmat.At(i, i) + s.kmat.At(o, o) - 2*s.kmat.At(i, o); q > zero {
			d = math.Min(gap/q, mu[o])
		}
		mu[i] += d
		mu[o] -= d
		for j := range grad {
			grad[j] -= d * (s.kmat.At(j, i) - s.kmat.At(j, o))
		}
	}

	// 𝐱ₖ = -(𝐜ₖ + √𝐝ₖ(𝐀̃ᵀ𝛍)ₖ)/𝐝ₖ  (k ≠ e)
	np := s.n - 1
	atv := make([]float64, np)
	mat.NewVecDense(np, atv).MulVec(s.rows.T(), mat.NewVecDense(m, mu))
	x := make(solver.Solution, s.n)
	z := make([]float64, np) // 𝐳ₖ = √𝐝ₖ𝐱ₖ
	for k, i := 0, 0; k < s.n; k++ {
		if k == s.epi {
			continue
		}
		sd := math.Sqrt(s.diag[k])
		x[k] = -(s.obj.Linear[k] + sd*atv[i]) / s.diag[k]
		z[i] = sd * x[k]
		i++
	}

	// The epigraph variable sits on the tightest row: 𝐱ₑ = 𝚖𝚊𝚡ⱼ ((𝐀̃𝐳)ⱼ - 𝐡ⱼ)/(-𝛄)
	az := make([]float64, m)
	mat.NewVecDense(m, az).MulVec(s.rows, mat.NewVecDense(np, z))
	xe := math.Inf(-1)
	for j, a := range az {
		xe = math.Max(xe, (a-s.h[j])/(-s.gamma))
	}
	x[s.epi] = xe

	// 𝒈(𝛍) = 𝛃ᵀ𝛍 - ½𝛍ᵀ𝐊𝛍 - ½‖𝐜̃‖₂² = ½(𝛃ᵀ𝛍 + 𝜵ᵀ𝛍) - ½‖𝐜̃‖₂²
	val := (floats.Dot(s.beta, mu)+floats.Dot(grad, mu))/2 - floats.Dot(s.cbar, s.cbar)/2

	var msg string
	if !ok {
		msg = fmt.Sprintf("kkt gap %.3e after %d iterations", gap, iter)
	}
	return x, val, msg, ok
}

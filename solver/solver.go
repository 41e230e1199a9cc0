// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solver defines the capability contract between convex optimizers
// and quadratic programming backends.
//
// A backend accepts a quadratic objective once per run, a replaceable set of
// linear constraints, and solves the program on demand. Any implementation
// satisfying Backend (active-set, interior-point, or an adapter around a
// commercial solver) can be substituted without touching optimizer logic.
package solver

import "math"

// Sense is the optimization direction of an objective.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Domain is the domain of the program variables.
type Domain int

const (
	Continuous Domain = iota
	Integer
	Binary
)

// Relation is the relation of a linear constraint row to its right-hand value.
type Relation int

const (
	LessEqual Relation = iota
	GreaterEqual
	Equal
)

// Solution is the variable assignment returned by a backend.
type Solution []float64

// QuadraticObjective represents 𝒇(𝐱) = ∑ᵢ≤ⱼ qᵢⱼ𝐱ᵢ𝐱ⱼ + ∑ᵢ cᵢ𝐱ᵢ over n variables.
// Quadratic coefficients are stored sparsely and symmetrically:
// SetQuadratic(i, j, q) and SetQuadratic(j, i, q) address the same term.
type QuadraticObjective struct {
	Sense  Sense
	Linear []float64
	quad   map[[2]int]float64
}

// NewQuadraticObjective returns a Minimize objective over n variables
// with all coefficients zero.
func NewQuadraticObjective(n int) *QuadraticObjective {
	return &QuadraticObjective{Linear: make([]float64, n)}
}

// Len reports the number of variables.
func (o *QuadraticObjective) Len() int { return len(o.Linear) }

// SetQuadratic sets the coefficient of the term 𝐱ᵢ𝐱ⱼ.
func (o *QuadraticObjective) SetQuadratic(i, j int, q float64) {
	if o.quad == nil {
		o.quad = make(map[[2]int]float64)
	}
	if i > j {
		i, j = j, i
	}
	if q == 0 {
		delete(o.quad, [2]int{i, j})
		return
	}
	o.quad[[2]int{i, j}] = q
}

// Quadratic reports the coefficient of the term 𝐱ᵢ𝐱ⱼ.
func (o *QuadraticObjective) Quadratic(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	return o.quad[[2]int{i, j}]
}

// PureDiagonal reports whether every quadratic term lies on the diagonal.
func (o *QuadraticObjective) PureDiagonal() bool {
	for ij := range o.quad {
		if ij[0] != ij[1] {
			return false
		}
	}
	return true
}

// Value evaluates the objective at x.
func (o *QuadraticObjective) Value(x []float64) float64 {
	v := 0.0
	for i, c := range o.Linear {
		v += c * x[i]
	}
	for ij, q := range o.quad {
		v += q * x[ij[0]] * x[ij[1]]
	}
	return v
}

// LinearConstraint represents one row ∑ᵢ gᵢ𝐱ᵢ ⟨Relation⟩ Value.
type LinearConstraint struct {
	Coefficients []float64
	Relation     Relation
	Value        float64
}

// Violation reports by how much x violates the constraint (0 when satisfied).
func (c *LinearConstraint) Violation(x []float64) float64 {
	lhs := 0.0
	for i, g := range c.Coefficients {
		lhs += g * x[i]
	}
	switch c.Relation {
	case LessEqual:
		return math.Max(0, lhs-c.Value)
	case GreaterEqual:
		return math.Max(0, c.Value-lhs)
	default:
		return math.Abs(lhs - c.Value)
	}
}

// LinearConstraints is the active constraint set submitted to a backend.
type LinearConstraints []LinearConstraint

// Backend is the capability contract a quadratic solver has to provide.
//
// Initialize, SetObjective and SetConstraints validate their input and
// report structural problems as errors. Solve is best effort: it returns
// whatever solution was found together with its objective value, and ok
// reports whether optimality was certified. When ok is false, msg carries
// a human-readable diagnostic.
type Backend interface {
	// Initialize allocates or resets internal state for a program
	// over n variables of the given domain.
	Initialize(n int, domain Domain) error
	// SetObjective installs the objective. Called once per optimization run.
	SetObjective(obj *QuadraticObjective) error
	// SetConstraints replaces the active linear constraints.
	SetConstraints(cs LinearConstraints) error
	// Solve attempts to solve the current program to optimality.
	Solve() (x Solution, value float64, msg string, ok bool)
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package smoqp

import (
	"math"
	"testing"

	"github.com/curioloop/bundle/solver"
)

func almostEqual(a, b, tol float64) bool {
	return a == b || math.Abs(a-b) <= tol
}

func vecEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !almostEqual(a[i], b[i], tol) {
			return false
		}
	}
	return true
}

// epigraphQP installs 𝚖𝚒𝚗 𝜆½w² + 𝛏 s.t. 𝐚ᵢw + 𝐛ᵢ ≤ 𝛏 over one weight variable.
func epigraphQP(t *testing.T, lambda float64, a, b []float64) *Solver {
	t.Helper()

	s := New()
	if err := s.Initialize(2, solver.Continuous); err != nil {
		t.Fatal(err)
	}
	obj := solver.NewQuadraticObjective(2)
	obj.SetQuadratic(0, 0, 0.5*lambda)
	obj.Linear[1] = 1
	if err := s.SetObjective(obj); err != nil {
		t.Fatal(err)
	}
	cs := make(solver.LinearConstraints, len(a))
	for i := range a {
		cs[i] = solver.LinearConstraint{
			Coefficients: []float64{a[i], -1},
			Relation:     solver.LessEqual,
			Value:        -b[i],
		}
	}
	if err := s.SetConstraints(cs); err != nil {
		t.Fatal(err)
	}
	return s
}

// One plane: 𝚖𝚒𝚗 ½w² + 𝛏 s.t. 2w - 1 ≤ 𝛏.
// The dual multiplier is forced to 1, so w = -2, 𝛏 = -5, value -3.
func TestSinglePlane(t *testing.T) {

	s := epigraphQP(t, 1, []float64{2}, []float64{-1})
	x, val, msg, ok := s.Solve()

	switch {
	case !ok:
		t.Fatalf("TestSinglePlane: Not Optimal: %s", msg)
	case !vecEqual(x, []float64{-2, -5}, 1e-12):
		t.Fatalf("TestSinglePlane: Bad Solution %v", x)
	case !almostEqual(val, -3, 1e-12):
		t.Fatalf("TestSinglePlane: Bad Value %v", val)
	}
}

// Two symmetric planes: 𝚖𝚒𝚗 ½w² + 𝚖𝚊𝚡(w,-w) at w = 0 with value 0.
func TestSymmetricPlanes(t *testing.T) {

	s := epigraphQP(t, 1, []float64{1, -1}, []float64{0, 0})
	x, val, msg, ok := s.Solve()

	switch {
	case !ok:
		t.Fatalf("TestSymmetricPlanes: Not Optimal: %s", msg)
	case !vecEqual(x, []float64{0, 0}, 1e-12):
		t.Fatalf("TestSymmetricPlanes: Bad Solution %v", x)
	case !almostEqual(val, 0, 1e-12):
		t.Fatalf("TestSymmetricPlanes: Bad Value %v", val)
	}
}

// Kink: 𝚖𝚒𝚗 ½w² + 𝚖𝚊𝚡(w, 1-w) at w = ½ with value ⅝ and 𝛍 = (¼,¾).
func TestKink(t *testing.T) {

	s := epigraphQP(t, 1, []float64{1, -1}, []float64{0, 1})
	x, val, msg, ok := s.Solve()

	switch {
	case !ok:
		t.Fatalf("TestKink: Not Optimal: %s", msg)
	case !vecEqual(x, []float64{0.5, 0.5}, 1e-10):
		t.Fatalf("TestKink: Bad Solution %v", x)
	case !almostEqual(val, 0.625, 1e-10):
		t.Fatalf("TestKink: Bad Value %v", val)
	case !vecEqual(s.mu, []float64{0.25, 0.75}, 1e-10):
		t.Fatalf("TestKink: Bad Multipliers %v", s.mu)
	}
}

// A dominated plane must end with zero dual mass:
// 𝚖𝚒𝚗 ½w² + 𝚖𝚊𝚡(w,2w) at w = -1 with value -½.
func TestDominatedPlane(t *testing.T) {

	s := epigraphQP(t, 1, []float64{1, 2}, []float64{0, 0})
	x, val, msg, ok := s.Solve()

	switch {
	case !ok:
		t.Fatalf("TestDominatedPlane: Not Optimal: %s", msg)
	case !vecEqual(x, []float64{-1, -1}, 1e-10):
		t.Fatalf("TestDominatedPlane: Bad Solution %v", x)
	case !almostEqual(val, -0.5, 1e-10):
		t.Fatalf("TestDominatedPlane: Bad Value %v", val)
	case !vecEqual(s.mu, []float64{1, 0}, 1e-10):
		t.Fatalf("TestDominatedPlane: Bad Multipliers %v", s.mu)
	}
}

// A small regularizer amplifies the primal step: with 𝜆 = 0.01 a single
// plane 2w - 1 ≤ 𝛏 gives w = -200, 𝛏 = -401, value -201.
func TestRegularizer(t *testing.T) {

	s := epigraphQP(t, 0.01, []float64{2}, []float64{-1})
	x, val, msg, ok := s.Solve()

	switch {
	case !ok:
		t.Fatalf("TestRegularizer: Not Optimal: %s", msg)
	case !vecEqual(x, []float64{-200, -401}, 1e-9):
		t.Fatalf("TestRegularizer: Bad Solution %v", x)
	case !almostEqual(val, -201, 1e-9):
		t.Fatalf("TestRegularizer: Bad Value %v", val)
	}
}

// GreaterEqual rows are normalized into ≤ form.
func TestGreaterEqualRows(t *testing.T) {

	s := New()
	if err := s.Initialize(2, solver.Continuous); err != nil {
		t.Fatal(err)
	}
	obj := solver.NewQuadraticObjective(2)
	obj.SetQuadratic(0, 0, 0.5)
	obj.Linear[1] = 1
	if err := s.SetObjective(obj); err != nil {
		t.Fatal(err)
	}
	// -2w + 𝛏 ≥ -1 ≡ 2w - 𝛏 ≤ 1
	cs := solver.LinearConstraints{{
		Coefficients: []float64{-2, 1},
		Relation:     solver.GreaterEqual,
		Value:        -1,
	}}
	if err := s.SetConstraints(cs); err != nil {
		t.Fatal(err)
	}

	x, val, msg, ok := s.Solve()
	switch {
	case !ok:
		t.Fatalf("TestGreaterEqualRows: Not Optimal: %s", msg)
	case !vecEqual(x, []float64{-2, -5}, 1e-12):
		t.Fatalf("TestGreaterEqualRows: Bad Solution %v", x)
	case !almostEqual(val, -3, 1e-12):
		t.Fatalf("TestGreaterEqualRows: Bad Value %v", val)
	}
}

// The previous multipliers warm-start the dual when rows only grow,
// which is what the cutting-plane loop produces.
func TestWarmStart(t *testing.T) {

	s := epigraphQP(t, 1, []float64{1}, []float64{0})
	if _, _, msg, ok := s.Solve(); !ok {
		t.Fatalf("TestWarmStart: First Solve Not Optimal: %s", msg)
	}

	cs := solver.LinearConstraints{
		{Coefficients: []float64{1, -1}, Relation: solver.LessEqual, Value: 0},
		{Coefficients: []float64{-1, -1}, Relation: solver.LessEqual, Value: -1},
	}
	if err := s.SetConstraints(cs); err != nil {
		t.Fatal(err)
	}
	if len(s.mu) != 2 || s.mu[0] != 1 {
		t.Fatalf("TestWarmStart: Multipliers Not Carried %v", s.mu)
	}

	x, val, msg, ok := s.Solve()
	switch {
	case !ok:
		t.Fatalf("TestWarmStart: Not Optimal: %s", msg)
	case !vecEqual(x, []float64{0.5, 0.5}, 1e-10):
		t.Fatalf("TestWarmStart: Bad Solution %v", x)
	case !almostEqual(val, 0.625, 1e-10):
		t.Fatalf("TestWarmStart: Bad Value %v", val)
	}
}

func TestStructureErrors(t *testing.T) {

	s := New()
	if err := s.Initialize(1, solver.Continuous); err == nil {
		t.Fatal("TestStructureErrors: Accepted Single Variable")
	}
	if err := s.Initialize(3, solver.Integer); err == nil {
		t.Fatal("TestStructureErrors: Accepted Integer Domain")
	}
	if err := s.Initialize(3, solver.Continuous); err != nil {
		t.Fatal(err)
	}

	obj := solver.NewQuadraticObjective(3)
	obj.SetQuadratic(0, 0, 0.5)
	obj.SetQuadratic(1, 1, 0.5)
	obj.Linear[2] = 1
	if err := s.SetObjective(obj); err != nil {
		t.Fatal(err)
	}

	cross := solver.NewQuadraticObjective(3)
	cross.SetQuadratic(0, 0, 0.5)
	cross.SetQuadratic(0, 1, 0.5)
	cross.Linear[2] = 1
	if err := s.SetObjective(cross); err == nil {
		t.Fatal("TestStructureErrors: Accepted Cross Term")
	}

	twoEpi := solver.NewQuadraticObjective(3)
	twoEpi.SetQuadratic(0, 0, 0.5)
	twoEpi.Linear[2] = 1
	if err := s.SetObjective(twoEpi); err == nil {
		t.Fatal("TestStructureErrors: Accepted Two Epigraph Variables")
	}

	maximize := solver.NewQuadraticObjective(3)
	maximize.Sense = solver.Maximize
	maximize.SetQuadratic(0, 0, 0.5)
	maximize.SetQuadratic(1, 1, 0.5)
	maximize.Linear[2] = 1
	if err := s.SetObjective(maximize); err == nil {
		t.Fatal("TestStructureErrors: Accepted Maximize")
	}

	if err := s.SetObjective(obj); err != nil {
		t.Fatal(err)
	}

	if err := s.SetConstraints(nil); err == nil {
		t.Fatal("TestStructureErrors: Accepted Empty Constraints")
	}
	eq := solver.LinearConstraints{{
		Coefficients: []float64{1, 1, -1}, Relation: solver.Equal, Value: 0,
	}}
	if err := s.SetConstraints(eq); err == nil {
		t.Fatal("TestStructureErrors: Accepted Equality Row")
	}
	posEpi := solver.LinearConstraints{{
		Coefficients: []float64{1, 1, 1}, Relation: solver.LessEqual, Value: 0,
	}}
	if err := s.SetConstraints(posEpi); err == nil {
		t.Fatal("TestStructureErrors: Accepted Positive Epigraph Coefficient")
	}
	mixed := solver.LinearConstraints{
		{Coefficients: []float64{1, 0, -1}, Relation: solver.LessEqual, Value: 0},
		{Coefficients: []float64{0, 1, -2}, Relation: solver.LessEqual, Value: 0},
	}
	if err := s.SetConstraints(mixed); err == nil {
		t.Fatal("TestStructureErrors: Accepted Non-Uniform Epigraph Coefficient")
	}
}

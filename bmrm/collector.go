// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bmrm

import (
	"slices"

	"github.com/curioloop/bundle/solver"
)

// Hyperplane is one supporting lower bound ⟨𝐰,𝐚⟩ + 𝐛 ≤ 𝐿(𝐰) of the
// objective, derived from a single oracle evaluation. Immutable once
// collected.
type Hyperplane struct {
	A []float64
	B float64
}

// Collector accumulates the cutting planes of the lower-bound model
// ℒ(𝐰) = 𝚖𝚊𝚡ᵢ ⟨𝐰,𝐚ᵢ⟩ + 𝐛ᵢ. The collection only grows: planes are never
// removed or deduplicated during a run.
type Collector struct {
	planes []Hyperplane
}

// Add appends the hyperplane (𝐚,𝐛). The slice is copied.
func (c *Collector) Add(a []float64, b float64) {
	c.planes = append(c.planes, Hyperplane{A: slices.Clone(a), B: b})
}

// Len reports the number of collected planes.
func (c *Collector) Len() int { return len(c.planes) }

// Reset drops all collected planes for a fresh run.
func (c *Collector) Reset() { c.planes = c.planes[:0] }

// Constraints materializes the collection as rows ⟨𝐰,𝐚ᵢ⟩ + 𝐛ᵢ - 𝛏 ≤ 0
// over the n+1 program variables (𝐰,𝛏). Pure: the collection is not
// modified and equal collections produce equal constraint sets.
func (c *Collector) Constraints() solver.LinearConstraints {
	cs := make(solver.LinearConstraints, len(c.planes))
	for i, p := range c.planes {
		g := make([]float64, len(p.A)+1)
		copy(g, p.A)
		g[len(p.A)] = -1
		cs[i] = solver.LinearConstraint{
			Coefficients: g,
			Relation:     solver.LessEqual,
			Value:        -p.B,
		}
	}
	return cs
}

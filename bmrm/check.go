// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bmrm

import (
	"math"
	"slices"
)

var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

// CheckOracle compares the subgradient reported by the oracle against a
// central finite-difference estimate at w and returns the largest absolute
// deviation over all components.
//
// The absolute step per component is h = relStep × 𝚖𝚊𝚡(1,|𝐰ᵢ|); relStep ≤ 0
// selects ∛𝛆 which balances truncation against round-off for the central
// difference. The check is only meaningful at points where 𝐿 is
// differentiable: at a kink the two quantities legitimately disagree.
func CheckOracle(oracle Evaluation, w []float64, relStep float64) float64 {

	if relStep <= 0 {
		relStep = cubeEps
	}

	n := len(w)
	g := make([]float64, n)
	oracle(w, g)

	x := slices.Clone(w)
	tmp := make([]float64, n)

	worst := 0.0
	for i := range x {
		h := relStep * math.Max(1, math.Abs(w[i]))
		x[i] = w[i] + h
		fp := oracle(x, tmp)
		x[i] = w[i] - h
		fm := oracle(x, tmp)
		x[i] = w[i]
		worst = math.Max(worst, math.Abs((fp-fm)/(2*h)-g[i]))
	}
	return worst
}

package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/curioloop/bundle/bmrm"
)

var (
	fitLambda float64
	fitMinGap float64
	fitSteps  int
	fitBias   bool
	fitTrace  bool
)

var fitCmd = &cobra.Command{
	Use:   "fit [flags] data.csv",
	Short: "Fit a least-absolute-deviation regression",
	Long: `Fit minimizes λ½|w|² + (1/m)Σ|⟨xᵢ,w⟩ - yᵢ| over the rows of a CSV
file whose last column is the regression target. The L1 loss is nonsmooth,
so plain gradient methods stall on it; the bundle method handles it through
subgradients.`,
	Args: cobra.ExactArgs(1),
	RunE: runFit,
}

func init() {
	fitCmd.Flags().Float64Var(&fitLambda, "lambda", 1e-3, "Regularizer weight")
	fitCmd.Flags().Float64Var(&fitMinGap, "min-gap", 1e-6, "Convergence threshold on the gap")
	fitCmd.Flags().IntVar(&fitSteps, "steps", 200, "Maximal number of iterations (0 = no limit)")
	fitCmd.Flags().BoolVar(&fitBias, "bias", true, "Append a constant bias feature")
	fitCmd.Flags().BoolVar(&fitTrace, "trace", false, "Print per-iteration gap diagnostics")
	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, args []string) error {

	rows, targets, err := loadCSV(args[0])
	if err != nil {
		return err
	}
	m, n := len(rows), len(rows[0])
	slog.Info("loaded samples", "file", args[0], "samples", m, "features", n)

	// 𝐿(𝐰) = (1/m)∑|⟨𝐱ᵢ,𝐰⟩ - 𝐲ᵢ| with subgradient (1/m)∑ 𝚜𝚐𝚗(⟨𝐱ᵢ,𝐰⟩ - 𝐲ᵢ)𝐱ᵢ
	oracle := func(w []float64, g []float64) float64 {
		loss := 0.0
		for i := range g {
			g[i] = 0
		}
		for i, x := range rows {
			r := -targets[i]
			for j, v := range x {
				r += v * w[j]
			}
			loss += math.Abs(r)
			s := 1.0
			if r < 0 {
				s = -1.0
			}
			for j, v := range x {
				g[j] += s * v / float64(m)
			}
		}
		return loss / float64(m)
	}

	level := bmrm.LogLast
	if fitTrace {
		level = bmrm.LogIter
	}
	p := bmrm.Problem{
		N:      n,
		Oracle: oracle,
		Param: bmrm.Parameter{
			Lambda: fitLambda,
			MinGap: fitMinGap,
			Steps:  fitSteps,
		},
		Logger: &bmrm.Logger{Level: level, Msg: os.Stderr},
	}
	opt, err := p.New()
	if err != nil {
		return err
	}

	w := make([]float64, n)
	res := opt.Fit(w)

	switch res.Status {
	case bmrm.ReachedMinGap:
		slog.Info("converged", "iterations", res.NumIter, "gap", res.Gap)
	case bmrm.ReachedSteps:
		slog.Warn("step limit reached before convergence", "iterations", res.NumIter, "gap", res.Gap)
	default:
		return fmt.Errorf("optimization failed after %d iterations", res.NumIter)
	}

	for j, v := range w {
		name := fmt.Sprintf("w[%d]", j)
		if fitBias && j == n-1 {
			name = "bias"
		}
		fmt.Printf("%s = %.8g\n", name, v)
	}
	fmt.Printf("objective = %.8g\n", res.MinValue)
	return nil
}

// loadCSV reads feature rows and targets, the target being the last column.
// A bias feature of 1 is appended to each row unless disabled.
func loadCSV(path string) ([][]float64, []float64, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}

	var rows [][]float64
	var targets []float64
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, nil, fmt.Errorf("row %d: need at least one feature and a target", i+1)
		}
		vals := make([]float64, 0, len(rec))
		for _, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				if i == 0 { // header line
					vals = nil
					break
				}
				return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			vals = append(vals, v)
		}
		if vals == nil {
			continue
		}
		// read the target before growing the feature row: vals has no
		// spare capacity, so appending the bias to an aliasing subslice
		// would overwrite the last column in place
		y := vals[len(vals)-1]
		x := slices.Clone(vals[:len(vals)-1])
		if fitBias {
			x = append(x, 1)
		}
		rows = append(rows, x)
		targets = append(targets, y)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%s: no data rows", path)
	}
	return rows, targets, nil
}

package stats

import (
	"fmt"
	"sort"
	"strings"
)

type Correction string

const (
	CorrectionNone       Correction = ""
	CorrectionBonferroni Correction = "bonferroni"
	CorrectionHolm       Correction = "holm"
	CorrectionFDRBH      Correction = "fdr_bh"
)

func ParseCorrection(method string) (Correction, error) {
	switch c := Correction(strings.ToLower(strings.TrimSpace(method))); c {
	case CorrectionNone, CorrectionBonferroni, CorrectionHolm, CorrectionFDRBH:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported correction method %q", method)
	}
}

// Adjust returns multiple-testing adjusted p-values in the input order.
func Adjust(pvalues []float64, method Correction) []float64 {
	m := len(pvalues)
	out := make([]float64, m)
	copy(out, pvalues)
	if m == 0 || method == CorrectionNone {
		return out
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pvalues[order[a]] < pvalues[order[b]] })

	switch method {
	case CorrectionBonferroni:
		for i, p := range pvalues {
			out[i] = clamp(p * float64(m))
		}
	case CorrectionHolm:
		running := 0.0
		for rank, idx := range order {
			adj := clamp(float64(m-rank) * pvalues[idx])
			if adj < running {
				adj = running
			}
			running = adj
			out[idx] = adj
		}
	case CorrectionFDRBH:
		running := 1.0
		for rank := m - 1; rank >= 0; rank-- {
			idx := order[rank]
			adj := clamp(float64(m) / float64(rank+1) * pvalues[idx])
			if adj > running {
				adj = running
			}
			running = adj
			out[idx] = adj
		}
	}
	return out
}

func clamp(p float64) float64 {
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

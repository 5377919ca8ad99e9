package engine

import (
	"math"
	"time"
)

// dailyReturns buckets portfolio values by UTC calendar day and returns the
// day-over-day returns, the first measured against the initial value.
func dailyReturns(initial float64, times []time.Time, values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	var returns []float64
	prev := initial
	for i := range values {
		last := i == len(values)-1
		if !last && sameDay(times[i], times[i+1]) {
			continue
		}
		if prev != 0 {
			returns = append(returns, values[i]/prev-1)
		}
		prev = values[i]
	}
	return returns
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// computeSharpe returns the annualized Sharpe ratio of periodic returns
// against an annual risk-free rate. Returns nil when there are no returns or
// their standard deviation is zero.
func computeSharpe(returns []float64, riskFreeRate float64, periodsPerYear float64) *float64 {
	if len(returns) == 0 {
		return nil
	}

	rate := math.Pow(1+riskFreeRate, 1/periodsPerYear) - 1
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rate
	}

	mean := computeMean(excess)
	stddev := computeStddev(excess, mean, false)
	if stddev == 0 || math.IsNaN(stddev) {
		return nil
	}

	ratio := mean / stddev * math.Sqrt(periodsPerYear)
	return &ratio
}

// computeMaxDrawdown returns the worst peak-to-trough decline as a percent of
// the peak and in money terms.
func computeMaxDrawdown(initial float64, values []float64) (pct float64, money float64) {
	peak := initial
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := peak - v
		if dd > money {
			money = dd
		}
		if p := dd / peak * 100; p > pct {
			pct = p
		}
	}
	return pct, money
}

// computeSQN returns the system quality number of per-trade net PnL:
// sqrt(n) * mean / stddev. Zero with fewer than two trades or zero spread.
func computeSQN(pnls []float64) float64 {
	n := len(pnls)
	if n < 2 {
		return 0
	}
	mean := computeMean(pnls)
	stddev := computeStddev(pnls, mean, false)
	if stddev == 0 {
		return 0
	}
	return math.Sqrt(float64(n)) * mean / stddev
}

// computeMean calculates the arithmetic mean.
func computeMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// computeStddev calculates the standard deviation; sample uses n-1.
func computeStddev(xs []float64, mean float64, sample bool) float64 {
	n := len(xs)
	if n == 0 || (sample && n < 2) {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		diff := x - mean
		sumSq += diff * diff
	}
	denom := float64(n)
	if sample {
		denom = float64(n - 1)
	}
	return math.Sqrt(sumSq / denom)
}

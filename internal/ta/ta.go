// Package ta holds the price indicators used by the rule-based deciders.
// Every function looks at the trailing window of the series and returns NaN
// when there is not enough history.
package ta

import (
	"math"

	"github.com/montanaflynn/stats"
)

func window(vals []float64, n int) (stats.Float64Data, bool) {
	if n <= 0 || len(vals) < n {
		return nil, false
	}
	return stats.Float64Data(vals[len(vals)-n:]), true
}

func SMA(closes []float64, n int) float64 {
	w, ok := window(closes, n)
	if !ok {
		return math.NaN()
	}
	m, err := w.Mean()
	if err != nil {
		return math.NaN()
	}
	return m
}

// RSI uses simple averages of gains and losses over the last period moves.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// StdDev is the population standard deviation of the window.
func StdDev(vals []float64, n int) float64 {
	w, ok := window(vals, n)
	if !ok {
		return math.NaN()
	}
	sd, err := stats.StandardDeviationPopulation(w)
	if err != nil {
		return math.NaN()
	}
	return sd
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	return mid, mid + k*sd, mid - k*sd
}

// Momentum is the fractional change over the last n moves.
func Momentum(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n+1 {
		return math.NaN()
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return math.NaN()
	}
	return closes[len(closes)-1]/base - 1
}

// Returns converts a value series to simple period returns.
func Returns(vals []float64) []float64 {
	if len(vals) < 2 {
		return nil
	}
	out := make([]float64, 0, len(vals)-1)
	for i := 1; i < len(vals); i++ {
		if vals[i-1] == 0 {
			continue
		}
		out = append(out, vals[i]/vals[i-1]-1)
	}
	return out
}

// MaxDrawdown is the largest peak-to-trough fall as a fraction of the peak.
func MaxDrawdown(vals []float64) float64 {
	peak, worst := math.Inf(-1), 0.0
	for _, v := range vals {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

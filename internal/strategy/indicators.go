package strategy

import "math"

// sma returns the simple moving average of the last period closes.
// ok is false until period values are available.
func sma(closes []float64, period int) (value float64, ok bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}

// bollinger returns (bottom, middle, top) bands over the last period closes
// using the population standard deviation.
func bollinger(closes []float64, period int, devfactor float64) (bot, mid, top float64, ok bool) {
	mid, ok = sma(closes, period)
	if !ok {
		return 0, 0, 0, false
	}
	sumSq := 0.0
	for _, c := range closes[len(closes)-period:] {
		d := c - mid
		sumSq += d * d
	}
	dev := devfactor * math.Sqrt(sumSq/float64(period))
	return mid - dev, mid, mid + dev, true
}

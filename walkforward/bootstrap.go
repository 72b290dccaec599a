package walkforward

import (
	"math"
	"math/rand"

	"github.com/foldline/backtester/statistics"
)

// realityCheck runs the chosen bootstrap over every candidate's train
// return series and reports how often the resampled best Sharpe reaches
// the observed best. Small p-values suggest the selection is not luck.
func realityCheck(candidates []candidate, s Settings, rng *rand.Rand) RealityCheck {
	periods := s.PeriodsPerYear
	if periods <= 0 {
		periods = statistics.DefaultPeriodsPerYear
	}
	method := s.Method
	if method == "" {
		method = MethodStationary
	}
	samples := s.Samples
	if samples <= 0 {
		samples = 200
	}

	observedBest := math.Inf(-1)
	var n int
	for i := range candidates {
		if sh := statistics.Sharpe(candidates[i].returns, periods); sh > observedBest {
			observedBest = sh
		}
		if len(candidates[i].returns) > n {
			n = len(candidates[i].returns)
		}
	}
	out := RealityCheck{
		BestSharpe:   observedBest,
		Method:       method,
		NumBootstrap: samples,
	}
	if n == 0 {
		out.PValue = 1
		return out
	}

	blockLength := s.BlockLength
	if blockLength <= 0 {
		blockLength = math.Pow(float64(n), 1.0/3.0)
	}
	out.BlockLength = blockLength

	out.Distribution = make([]float64, 0, samples)
	exceed := 0
	for b := 0; b < samples; b++ {
		maxBoot := math.Inf(-1)
		for i := range candidates {
			rets := candidates[i].returns
			if len(rets) == 0 {
				continue
			}
			var idx []int
			switch method {
			case MethodCircular:
				idx = circularIndices(len(rets), blockLength, rng)
			case MethodIID:
				idx = iidIndices(len(rets), rng)
			default:
				idx = stationaryIndices(len(rets), blockLength, rng)
			}
			sample := make([]float64, len(idx))
			for j, k := range idx {
				sample[j] = rets[k]
			}
			if sh := statistics.Sharpe(sample, periods); sh > maxBoot {
				maxBoot = sh
			}
		}
		out.Distribution = append(out.Distribution, maxBoot)
		if maxBoot >= observedBest {
			exceed++
		}
	}
	// add-one smoothing keeps the p-value off exact zero
	out.PValue = float64(exceed+1) / float64(samples+1)
	return out
}

// stationaryIndices draws a Politis-Romano stationary bootstrap sample of
// length n. Blocks have geometric length with mean blockLength and wrap
// circularly.
func stationaryIndices(n int, blockLength float64, rng *rand.Rand) []int {
	p := 1 / blockLength
	if p > 1 {
		p = 1
	}
	idx := make([]int, n)
	pos := rng.Intn(n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if rng.Float64() < p {
				pos = rng.Intn(n)
			} else {
				pos = (pos + 1) % n
			}
		}
		idx[i] = pos
	}
	return idx
}

// circularIndices draws fixed-length blocks with random starts, wrapping
// at the series end
func circularIndices(n int, blockLength float64, rng *rand.Rand) []int {
	b := int(math.Round(blockLength))
	if b < 1 {
		b = 1
	}
	idx := make([]int, 0, n)
	for len(idx) < n {
		start := rng.Intn(n)
		for j := 0; j < b && len(idx) < n; j++ {
			idx = append(idx, (start+j)%n)
		}
	}
	return idx
}

func iidIndices(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

package experiment

import "math"

// twoProportionZ runs the pooled two-proportion z-test on
// (successA/totalA) vs (successB/totalB). Returns the z statistic and the
// two-tailed p-value. A zero standard error (identical degenerate samples)
// yields z=0, p=1.
func twoProportionZ(successA, totalA, successB, totalB int) (z, p float64) {
	if totalA == 0 || totalB == 0 {
		return 0, 1
	}

	pA := float64(successA) / float64(totalA)
	pB := float64(successB) / float64(totalB)

	pooled := float64(successA+successB) / float64(totalA+totalB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(totalA) + 1/float64(totalB)))
	if se == 0 {
		return 0, 1
	}

	z = (pB - pA) / se
	p = 2 * (1 - normalCDF(math.Abs(z)))
	return z, p
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// Package matrix contains sampling helpers built on gonum distributions.
package matrix

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// SampleUniform samples n floats uniformly in [vMin, vMax] from src.
func SampleUniform(n int, vMin, vMax float64, src rand.Source) []float64 {
	dist := distuv.Uniform{
		Min: vMin,
		Max: vMax,
		Src: src,
	}
	z := make([]float64, n)
	for i := range z {
		z[i] = dist.Rand()
	}
	return z
}

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax].
func SampleNIntegersUniform(n, vMin, vMax int, src rand.Source) []int {
	// widen by half a unit on each side so that both ends are as likely as the interior
	dist := distuv.Uniform{
		Min: float64(vMin) - 0.5,
		Max: float64(vMax) + 0.5,
		Src: src,
	}
	z := make([]int, n)
	for i := range z {
		val := math.Round(dist.Rand())
		for val < float64(vMin) || val > float64(vMax) {
			val = math.Round(dist.Rand())
		}
		z[i] = int(val)
	}

	return z
}

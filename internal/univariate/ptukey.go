package univariate

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gauss-Legendre points per panel.
const legendrePoints = 24

// panels integrates f over [a, b] split into n equal panels.
func panels(f func(float64) float64, a, b float64, n int) float64 {
	var sum float64
	h := (b - a) / float64(n)
	for i := 0; i < n; i++ {
		lo := a + float64(i)*h
		sum += quad.Fixed(f, lo, lo+h, legendrePoints, quad.Legendre{}, 0)
	}
	return sum
}

// rangeCDF is P(R <= w) for the range R of k independent standard normals:
// k ∫ φ(z) [Φ(z) − Φ(z−w)]^(k−1) dz.
func rangeCDF(w float64, k int) float64 {
	if w <= 0 {
		return 0
	}
	n := distuv.UnitNormal
	f := func(z float64) float64 {
		d := n.CDF(z) - n.CDF(z-w)
		if d <= 0 {
			return 0
		}
		return n.Prob(z) * math.Pow(d, float64(k-1))
	}
	p := float64(k) * panels(f, -8, 8+w, 16+int(w))
	return math.Min(math.Max(p, 0), 1)
}

// ptukey is the studentized range CDF P(Q <= q) for k means and df degrees of
// freedom, integrating rangeCDF(q·s) over the density of s = sqrt(χ²_df/df).
func ptukey(q float64, k int, df float64) float64 {
	if q <= 0 {
		return 0
	}
	if math.IsInf(df, 1) || df > 25000 {
		return rangeCDF(q, k)
	}
	half := df / 2
	logNorm := half*math.Log(df) - lgamma(half) - (half-1)*math.Ln2
	dens := func(s float64) float64 {
		if s <= 0 {
			return 0
		}
		return math.Exp(logNorm + (df-1)*math.Log(s) - df*s*s/2)
	}
	spread := 12 / math.Sqrt(2*df)
	lo := math.Max(0, 1-spread)
	hi := 1 + spread
	f := func(s float64) float64 {
		d := dens(s)
		if d < 1e-300 {
			return 0
		}
		return d * rangeCDF(q*s, k)
	}
	p := panels(f, lo, hi, 12)
	return math.Min(math.Max(p, 0), 1)
}

// qtukey inverts ptukey by bisection.
func qtukey(p float64, k int, df float64) float64 {
	lo, hi := 0.0, 1.0
	for ptukey(hi, k, df) < p {
		lo, hi = hi, hi*2
	}
	for i := 0; i < 50 && hi-lo > 1e-6; i++ {
		mid := (lo + hi) / 2
		if ptukey(mid, k, df) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

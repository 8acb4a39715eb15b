package univariate

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/aclements/go-moremath/stats"
)

// Diagnostics are simulation-based residual checks for a fitted model. They are
// reported for review; nothing in the pipeline acts on them.
type Diagnostics struct {
	Simulations int       `json:"simulations"`
	Seed        uint64    `json:"seed"`
	Scaled      []float64 `json:"scaled_residuals"` // quantile residuals in [0, 1]
	KS          float64   `json:"ks_statistic"`
	KSP         float64   `json:"ks_p"`
	Dispersion  float64   `json:"dispersion"` // observed / mean simulated residual variance
	DispersionP float64   `json:"dispersion_p"`
	Outliers    int       `json:"outliers"` // observations outside every simulated value
}

// ResidualDiagnostics simulates nSim responses from the fitted model
// (fitted + σ̂·ε) and compares each observation with its simulated distribution.
// Uniform scaled residuals and a dispersion ratio near 1 indicate an adequate model.
func ResidualDiagnostics(m *Model, nSim int, seed uint64) (*Diagnostics, error) {
	if m == nil || len(m.Y) == 0 {
		return nil, errors.New("univariate: no fitted model")
	}
	if nSim < 2 {
		return nil, errors.New("univariate: need at least 2 simulations")
	}
	n := len(m.Y)
	rng := rand.New(rand.NewPCG(seed, 0x5eed))

	below := make([]float64, n)
	simVar := make([]float64, nSim)
	resid := make([]float64, n)
	for s := 0; s < nSim; s++ {
		for i := 0; i < n; i++ {
			y := m.Fitted[i] + m.Sigma*rng.NormFloat64()
			switch {
			case y < m.Y[i]:
				below[i]++
			case y == m.Y[i]:
				below[i] += 0.5
			}
			resid[i] = y - m.Fitted[i]
		}
		sample := stats.Sample{Xs: resid}
		simVar[s] = sample.Variance()
	}

	d := &Diagnostics{Simulations: nSim, Seed: seed, Scaled: make([]float64, n)}
	for i := range below {
		d.Scaled[i] = below[i] / float64(nSim)
		if d.Scaled[i] == 0 || d.Scaled[i] == 1 {
			d.Outliers++
		}
	}
	d.KS, d.KSP = ksUniform(d.Scaled)

	obs, sims := stats.Sample{Xs: m.Residuals}, stats.Sample{Xs: simVar}
	obsVar, meanSim := obs.Variance(), sims.Mean()
	if meanSim > 0 {
		d.Dispersion = obsVar / meanSim
	} else {
		d.Dispersion = math.NaN()
	}
	var ge, le int
	for _, v := range simVar {
		if v >= obsVar {
			ge++
		}
		if v <= obsVar {
			le++
		}
	}
	d.DispersionP = math.Min(1, 2*float64(min(ge, le))/float64(nSim))
	return d, nil
}

// ksUniform is the one-sample Kolmogorov-Smirnov test of xs against U(0,1) with
// the asymptotic p-value (Stephens' small-sample correction).
func ksUniform(xs []float64) (dstat, p float64) {
	n := len(xs)
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	for i, x := range sorted {
		hi := float64(i+1)/float64(n) - x
		lo := x - float64(i)/float64(n)
		dstat = math.Max(dstat, math.Max(hi, lo))
	}
	sn := math.Sqrt(float64(n))
	lambda := (sn + 0.12 + 0.11/sn) * dstat
	return dstat, kolmogorovQ(lambda)
}

// kolmogorovQ is P(K > λ) for the Kolmogorov distribution.
func kolmogorovQ(lambda float64) float64 {
	if lambda < 0.2 {
		return 1
	}
	var sum float64
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	return math.Min(1, math.Max(0, 2*sum))
}

// Household demand series — smooth pseudo-random consumption propensity.
package market

import "github.com/ojrac/opensimplex-go"

// DemandSeries produces a slowly varying consumption propensity in
// [base-amplitude, base+amplitude]. Simplex noise gives period-to-period
// continuity that a plain random draw would not; households don't halve
// their spending from one period to the next.
type DemandSeries struct {
	noise     opensimplex.Noise
	base      float64
	amplitude float64
	step      float64
}

// NewDemandSeries creates a demand series around the base propensity.
func NewDemandSeries(seed int64, base, amplitude float64) *DemandSeries {
	return &DemandSeries{
		noise:     opensimplex.New(seed),
		base:      base,
		amplitude: amplitude,
		step:      0.15,
	}
}

// Propensity returns the spending propensity for a period, clamped to [0, 1].
func (d *DemandSeries) Propensity(period int) float64 {
	p := d.base + d.amplitude*d.noise.Eval2(float64(period)*d.step, 0)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

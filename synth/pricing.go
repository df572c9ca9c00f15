package synth

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/teranos/sentinel/errors"
)

const (
	uncertaintyQubits = 3
	payoffRotation    = 0.1
	// highVolatility separates protective from speculative hedge ratios.
	highVolatility = 0.5
)

// OptionContract is a European call priced against the current signal.
type OptionContract struct {
	Spot     float64 `json:"spot"`
	Strike   float64 `json:"strike"`
	Vol      float64 `json:"vol"`
	Rate     float64 `json:"rate"`
	Maturity float64 `json:"maturity"` // years
}

// Validate checks the contract terms.
func (c OptionContract) Validate() error {
	switch {
	case c.Spot <= 0:
		return errors.Newf("spot must be > 0, got %g", c.Spot)
	case c.Strike <= 0:
		return errors.Newf("strike must be > 0, got %g", c.Strike)
	case c.Vol < 0 || math.IsNaN(c.Vol):
		return errors.Newf("vol must be >= 0, got %g", c.Vol)
	case c.Maturity <= 0:
		return errors.Newf("maturity must be > 0, got %g", c.Maturity)
	}
	return nil
}

// PricingConfig holds the contract terms priced on every cycle trigger.
type PricingConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Strike   float64 `mapstructure:"strike"`
	Rate     float64 `mapstructure:"rate"`
	Maturity float64 `mapstructure:"maturity"`
}

// DefaultPricingConfig prices a 105 strike at 5% over 0.1 years.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{Enabled: true, Strike: 105, Rate: 0.05, Maturity: 0.1}
}

// Validate checks the terms when pricing is enabled.
func (c PricingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Strike <= 0 {
		return errors.Newf("pricing.strike must be > 0, got %g", c.Strike)
	}
	if c.Maturity <= 0 {
		return errors.Newf("pricing.maturity must be > 0, got %g", c.Maturity)
	}
	return nil
}

// Contract builds the contract for spot at volatility vol.
func (c PricingConfig) Contract(spot, vol float64) OptionContract {
	return OptionContract{Spot: spot, Strike: c.Strike, Vol: vol, Rate: c.Rate, Maturity: c.Maturity}
}

// Pricing is a synthesized amplitude-estimation workload with the log-normal
// moments of the spot at maturity and the hedge ratio for its volatility.
type Pricing struct {
	Workload     Workload
	ExpectedSpot float64
	SpotVariance float64
	HedgeRatio   float64
}

// Pricer synthesizes option-pricing workloads.
type Pricer interface {
	Price(ctx context.Context, c OptionContract) (Pricing, error)
}

// HedgeRatio returns 0.8 above 50% volatility and 0.2 otherwise.
func HedgeRatio(vol float64) float64 {
	if vol > highVolatility {
		return 0.8
	}
	return 0.2
}

// SpotMoments returns the mean and variance of the log-normal spot at maturity.
func SpotMoments(c OptionContract) (mean, variance float64) {
	mu := math.Log(c.Spot) + (c.Rate-0.5*c.Vol*c.Vol)*c.Maturity
	sigma2 := c.Vol * c.Vol * c.Maturity
	mean = math.Exp(mu + sigma2/2)
	variance = (math.Exp(sigma2) - 1) * math.Exp(2*mu+sigma2)
	return mean, variance
}

func pricingFor(c OptionContract, w Workload) Pricing {
	mean, variance := SpotMoments(c)
	return Pricing{
		Workload:     w,
		ExpectedSpot: mean,
		SpotVariance: variance,
		HedgeRatio:   HedgeRatio(c.Vol),
	}
}

// Price renders the state-preparation and controlled-payoff stage of an
// iterative amplitude estimation over three uncertainty qubits.
func (b *Builtin) Price(ctx context.Context, c OptionContract) (Pricing, error) {
	if err := c.Validate(); err != nil {
		return Pricing{}, err
	}
	if err := ctx.Err(); err != nil {
		return Pricing{}, err
	}

	n := uncertaintyQubits + 1
	lines := []string{
		"OPENQASM 2.0;",
		`include "qelib1.inc";`,
		fmt.Sprintf("qreg q[%d];", n),
		fmt.Sprintf("creg meas[%d];", n),
	}
	for i := 0; i < uncertaintyQubits; i++ {
		lines = append(lines, fmt.Sprintf("h q[%d];", i))
	}
	for i := 0; i < uncertaintyQubits; i++ {
		lines = append(lines, fmt.Sprintf("ry(%g) q[%d];", c.Vol, i))
	}
	lines = append(lines,
		fmt.Sprintf("cry(%g) q[0], q[%d];", payoffRotation, uncertaintyQubits),
		"measure q -> meas;")

	return pricingFor(c, Workload{
		Format:  FormatQASM2,
		Circuit: strings.Join(lines, "\n"),
		Source:  ModeBuiltin,
	}), nil
}

// Package feed produces the synthetic market signal that drives the decision loop.
//
// The signal is a discretized Heston process: price and variance evolve
// together, with the variance mean-reverting towards a long-run level and
// the two Brownian drivers correlated by rho. Each Generator owns its path;
// calling Advance always continues it, there is no restart.
package feed

import (
	"math"
	"math/rand/v2"

	"github.com/teranos/sentinel/errors"
)

// Params configures the two-factor process.
type Params struct {
	InitialPrice    float64 `mapstructure:"initial_price"`
	InitialVariance float64 `mapstructure:"initial_variance"`
	Kappa           float64 `mapstructure:"kappa"`          // mean reversion speed
	Theta           float64 `mapstructure:"theta"`          // long-run variance
	Xi              float64 `mapstructure:"xi"`             // volatility of variance
	Rho             float64 `mapstructure:"rho"`            // price/variance correlation
	Dt              float64 `mapstructure:"dt"`             // time step in years
	Drift           float64 `mapstructure:"drift"`          // annual price drift
	VarianceFloor   float64 `mapstructure:"variance_floor"` // strictly positive lower bound on variance
}

// DefaultParams returns a daily-step process starting at 100 with a leverage effect.
func DefaultParams() Params {
	return Params{
		InitialPrice:    100.0,
		InitialVariance: 0.04,
		Kappa:           2.0,
		Theta:           0.04,
		Xi:              0.1,
		Rho:             -0.7,
		Dt:              1.0 / 252.0,
		Drift:           0.05,
		VarianceFloor:   0.001,
	}
}

// Validate checks that the process is well defined.
func (p Params) Validate() error {
	if p.Rho < -1 || p.Rho > 1 {
		return errors.Newf("feed.rho must be within [-1, 1], got %f", p.Rho)
	}
	if p.Dt <= 0 {
		return errors.Newf("feed.dt must be > 0, got %f", p.Dt)
	}
	if p.VarianceFloor <= 0 {
		return errors.Newf("feed.variance_floor must be > 0, got %f", p.VarianceFloor)
	}
	if p.InitialVariance < 0 {
		return errors.Newf("feed.initial_variance must be >= 0, got %f", p.InitialVariance)
	}
	if p.InitialPrice <= 0 {
		return errors.Newf("feed.initial_price must be > 0, got %f", p.InitialPrice)
	}
	return nil
}

// Generator steps the process. Not safe for concurrent use; the producer
// goroutine owns it.
type Generator struct {
	params   Params
	rng      *rand.Rand
	price    float64
	variance float64
}

// New creates a generator drawing from rng.
// Pass a seeded source (rand.New(rand.NewPCG(seed, seed))) for reproducible paths.
func New(params Params, rng *rand.Rand) *Generator {
	return &Generator{
		params:   params,
		rng:      rng,
		price:    params.InitialPrice,
		variance: params.InitialVariance,
	}
}

// NewSeeded creates a generator with a PCG source seeded from seed.
func NewSeeded(params Params, seed uint64) *Generator {
	return New(params, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Advance moves the process one step and returns the new price.
func (g *Generator) Advance() float64 {
	p := g.params

	z1 := g.rng.NormFloat64()
	z2 := p.Rho*z1 + math.Sqrt(1-p.Rho*p.Rho)*g.rng.NormFloat64()

	sqrtDt := math.Sqrt(p.Dt)

	// Variance is kept >= floor, so the square roots below are always defined
	dv := p.Kappa*(p.Theta-g.variance)*p.Dt + p.Xi*math.Sqrt(g.variance)*z2*sqrtDt
	g.variance = math.Max(g.variance+dv, p.VarianceFloor)

	ds := p.Drift*g.price*p.Dt + math.Sqrt(g.variance)*g.price*z1*sqrtDt
	g.price += ds

	return g.price
}

// Price returns the most recent price.
func (g *Generator) Price() float64 {
	return g.price
}

// Variance returns the most recent variance.
func (g *Generator) Variance() float64 {
	return g.variance
}

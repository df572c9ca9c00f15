package feed

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance_VarianceNeverBelowFloor(t *testing.T) {
	params := DefaultParams()
	// Violent vol-of-vol pushes the raw update negative regularly
	params.Xi = 5.0
	params.InitialVariance = params.VarianceFloor

	for seed := uint64(1); seed <= 5; seed++ {
		gen := NewSeeded(params, seed)
		for i := 0; i < 2000; i++ {
			gen.Advance()
			require.GreaterOrEqual(t, gen.Variance(), params.VarianceFloor,
				"seed %d step %d: variance %g below floor", seed, i, gen.Variance())
		}
	}
}

func TestAdvance_PriceStaysFinite(t *testing.T) {
	gen := NewSeeded(DefaultParams(), 42)

	for i := 0; i < 10_000; i++ {
		price := gen.Advance()
		require.False(t, math.IsNaN(price) || math.IsInf(price, 0), "step %d produced %v", i, price)
	}
}

func TestAdvance_DeterministicForSameSeed(t *testing.T) {
	a := NewSeeded(DefaultParams(), 7)
	b := NewSeeded(DefaultParams(), 7)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Advance(), b.Advance(), "step %d diverged", i)
	}
}

func TestAdvance_ContinuesSamePath(t *testing.T) {
	// One generator advanced 20 times equals the 20th value of a fresh run
	fresh := NewSeeded(DefaultParams(), 11)
	var want float64
	for i := 0; i < 20; i++ {
		want = fresh.Advance()
	}

	gen := NewSeeded(DefaultParams(), 11)
	for i := 0; i < 10; i++ {
		gen.Advance()
	}
	var got float64
	for i := 0; i < 10; i++ {
		got = gen.Advance()
	}

	assert.Equal(t, want, got)
	assert.Equal(t, got, gen.Price())
}

func TestAdvance_UsesInjectedSource(t *testing.T) {
	a := New(DefaultParams(), rand.New(rand.NewPCG(1, 2)))
	b := New(DefaultParams(), rand.New(rand.NewPCG(3, 4)))

	assert.NotEqual(t, a.Advance(), b.Advance())
}

func TestNew_StartsAtInitialState(t *testing.T) {
	params := DefaultParams()
	gen := NewSeeded(params, 1)

	assert.Equal(t, params.InitialPrice, gen.Price())
	assert.Equal(t, params.InitialVariance, gen.Variance())
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Params) {}},
		{name: "rho above one", mutate: func(p *Params) { p.Rho = 1.5 }, wantErr: "feed.rho"},
		{name: "zero dt", mutate: func(p *Params) { p.Dt = 0 }, wantErr: "feed.dt"},
		{name: "zero floor", mutate: func(p *Params) { p.VarianceFloor = 0 }, wantErr: "feed.variance_floor"},
		{name: "negative variance", mutate: func(p *Params) { p.InitialVariance = -0.1 }, wantErr: "feed.initial_variance"},
		{name: "zero price", mutate: func(p *Params) { p.InitialPrice = 0 }, wantErr: "feed.initial_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amezcua/tightbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOdds sirve un set fijo de perfiles, sin feed detrás.
type fakeOdds struct {
	profiles []domain.TightnessProfile
}

func (f *fakeOdds) Add(domain.Market) {}

func (f *fakeOdds) Remove(string) {}

func (f *fakeOdds) SetStrike(string, float64) bool { return false }

func (f *fakeOdds) AllProfiles() []domain.TightnessProfile {
	out := make([]domain.TightnessProfile, len(f.profiles))
	copy(out, f.profiles)
	return out
}

func (f *fakeOdds) Profile(conditionID string) (domain.TightnessProfile, bool) {
	for _, p := range f.profiles {
		if p.Market.ConditionID == conditionID {
			return p, true
		}
	}
	return domain.TightnessProfile{}, false
}

func (f *fakeOdds) TrackedMarkets() []domain.Market {
	var out []domain.Market
	for _, p := range f.profiles {
		out = append(out, p.Market)
	}
	return out
}

type fakePrices struct {
	latest map[string]float64
	sigma  map[string]float64
}

func (f *fakePrices) Latest(asset string) (float64, bool) {
	v, ok := f.latest[asset]
	return v, ok
}

func (f *fakePrices) PriceAt(asset string, _ time.Time) (float64, bool) {
	return f.Latest(asset)
}

func (f *fakePrices) Volatility(asset string, _ time.Duration) (float64, bool) {
	v, ok := f.sigma[asset]
	return v, ok
}

func (f *fakePrices) ExpectedMove(asset string, secs float64, _ time.Duration) (float64, bool) {
	return 0, false
}

func (f *fakePrices) HasCrossed(string, float64, time.Time) bool { return false }

func (f *fakePrices) History(string, time.Time, time.Time) []domain.PriceSample { return nil }

// fakeAsks sirve asks por token y cuenta las consultas REST.
type fakeAsks struct {
	asks  map[string]float64
	err   error
	calls int
}

func (f *fakeAsks) BestAsk(_ context.Context, tokenID string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.asks[tokenID], nil
}

func signalTestConfig() SignalConfig {
	return SignalConfig{
		Eval: domain.EvalConfig{
			MinSecondsRemaining: 7,
			EntryWindow:         90,
			MinVolatility:       0.00007,
			MinEdge:             0.05,
			MinAsk:              0.05,
		},
		VolatilityWindow: 300 * time.Second,
		Stake:            2.0,
	}
}

func signalTestMarket(strike *float64) domain.Market {
	return domain.Market{
		ConditionID: "0xsig",
		Question:    "Bitcoin Up or Down - 3:00 PM ET",
		YesTokenID:  "tok_yes",
		NoTokenID:   "tok_no",
		Asset:       "BTC",
		Strike:      strike,
	}
}

func profileFor(m domain.Market, remaining float64) domain.TightnessProfile {
	return domain.TightnessProfile{
		Market:           m,
		SecondsRemaining: remaining,
		CurrentYes:       0.70,
		CurrentNo:        0.35,
		AvgSpread:        0.08,
	}
}

func TestCheckSignals_FiresOpportunity(t *testing.T) {
	strike := 50000.0
	m := signalTestMarket(&strike)
	odds := &fakeOdds{profiles: []domain.TightnessProfile{profileFor(m, 30)}}
	prices := &fakePrices{
		latest: map[string]float64{"BTC": 50080},
		sigma:  map[string]float64{"BTC": 0.0002},
	}
	asks := &fakeAsks{asks: map[string]float64{"tok_yes": 0.70, "tok_no": 0.35}}

	eng := NewSignalEngine(signalTestConfig(), odds, prices, asks, testLogger())
	fixed := time.Date(2026, 3, 1, 15, 14, 30, 0, time.UTC)
	eng.now = func() time.Time { return fixed }

	opps := eng.CheckSignals(context.Background())
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "0xsig", opp.Market.ConditionID)
	assert.Equal(t, domain.SideYes, opp.Side)
	assert.Equal(t, 0.70, opp.Ask)
	assert.Equal(t, 2.0, opp.Stake)
	assert.Equal(t, 50000.0, opp.Strike)
	assert.Equal(t, 50080.0, opp.Spot)
	assert.Equal(t, 0.0002, opp.Volatility)
	assert.InDelta(t, opp.ModelProb-0.70, opp.Edge, 1e-12)
	assert.Greater(t, opp.Edge, 0.05)
	assert.Equal(t, fixed, opp.CreatedAt)

	assert.True(t, eng.HasFired("0xsig"))
	// Un tick que dispara no deja skip.
	assert.Empty(t, eng.Skips("0xsig"))
}

func TestCheckSignals_SecondPassSuppressed(t *testing.T) {
	strike := 50000.0
	m := signalTestMarket(&strike)
	odds := &fakeOdds{profiles: []domain.TightnessProfile{profileFor(m, 30)}}
	prices := &fakePrices{
		latest: map[string]float64{"BTC": 50080},
		sigma:  map[string]float64{"BTC": 0.0002},
	}
	asks := &fakeAsks{asks: map[string]float64{"tok_yes": 0.70, "tok_no": 0.35}}

	eng := NewSignalEngine(signalTestConfig(), odds, prices, asks, testLogger())

	require.Len(t, eng.CheckSignals(context.Background()), 1)
	callsAfterFire := asks.calls

	// Segundo pase: mismo mercado, ningún disparo nuevo y skip registrado.
	assert.Empty(t, eng.CheckSignals(context.Background()))
	skips := eng.Skips("0xsig")
	require.Len(t, skips, 1)
	assert.Equal(t, domain.SkipAlreadyFired, skips[0].Reason)

	// Tras disparar no se vuelve a pagar el lookup REST.
	assert.Equal(t, callsAfterFire, asks.calls)
}

func TestCheckSignals_NoStrikeSkipsWithoutRESTLookup(t *testing.T) {
	m := signalTestMarket(nil)
	odds := &fakeOdds{profiles: []domain.TightnessProfile{profileFor(m, 30)}}
	prices := &fakePrices{
		latest: map[string]float64{"BTC": 50080},
		sigma:  map[string]float64{"BTC": 0.0002},
	}
	asks := &fakeAsks{asks: map[string]float64{"tok_yes": 0.70, "tok_no": 0.35}}

	eng := NewSignalEngine(signalTestConfig(), odds, prices, asks, testLogger())

	assert.Empty(t, eng.CheckSignals(context.Background()))
	assert.Empty(t, eng.CheckSignals(context.Background()))

	// Un skip por tick, y los gates baratos cortan antes del REST.
	skips := eng.Skips("0xsig")
	require.Len(t, skips, 2)
	for _, s := range skips {
		assert.Equal(t, domain.SkipNoStrike, s.Reason)
	}
	assert.Zero(t, asks.calls)
	assert.False(t, eng.HasFired("0xsig"))
}

func TestCheckSignals_AskLookupFailure(t *testing.T) {
	strike := 50000.0
	m := signalTestMarket(&strike)
	odds := &fakeOdds{profiles: []domain.TightnessProfile{profileFor(m, 30)}}
	prices := &fakePrices{
		latest: map[string]float64{"BTC": 50080},
		sigma:  map[string]float64{"BTC": 0.0002},
	}
	asks := &fakeAsks{err: context.DeadlineExceeded}

	eng := NewSignalEngine(signalTestConfig(), odds, prices, asks, testLogger())

	assert.Empty(t, eng.CheckSignals(context.Background()))
	skips := eng.Skips("0xsig")
	require.Len(t, skips, 1)
	assert.Equal(t, domain.SkipNoAsks, skips[0].Reason)
}

func TestCheckSignals_MultipleMarkets(t *testing.T) {
	strike := 50000.0
	firing := signalTestMarket(&strike)
	ethStrike := 3200.0
	waiting := domain.Market{
		ConditionID: "0xwait",
		Question:    "Ethereum Up or Down - 3:00 PM ET",
		YesTokenID:  "eth_yes",
		NoTokenID:   "eth_no",
		Asset:       "ETH",
		Strike:      &ethStrike,
	}
	odds := &fakeOdds{profiles: []domain.TightnessProfile{
		profileFor(firing, 30),
		profileFor(waiting, 400), // aún fuera de la ventana de entrada
	}}
	prices := &fakePrices{
		latest: map[string]float64{"BTC": 50080, "ETH": 3200},
		sigma:  map[string]float64{"BTC": 0.0002, "ETH": 0.0002},
	}
	asks := &fakeAsks{asks: map[string]float64{"tok_yes": 0.70, "tok_no": 0.35}}

	eng := NewSignalEngine(signalTestConfig(), odds, prices, asks, testLogger())

	opps := eng.CheckSignals(context.Background())
	require.Len(t, opps, 1)
	assert.Equal(t, "0xsig", opps[0].Market.ConditionID)

	skips := eng.Skips("0xwait")
	require.Len(t, skips, 1)
	assert.Equal(t, domain.SkipOutsideWindow, skips[0].Reason)
}

func TestUntrack_ClearsState(t *testing.T) {
	strike := 50000.0
	m := signalTestMarket(&strike)
	odds := &fakeOdds{profiles: []domain.TightnessProfile{profileFor(m, 30)}}
	prices := &fakePrices{
		latest: map[string]float64{"BTC": 50080},
		sigma:  map[string]float64{"BTC": 0.0002},
	}
	asks := &fakeAsks{asks: map[string]float64{"tok_yes": 0.70, "tok_no": 0.35}}

	eng := NewSignalEngine(signalTestConfig(), odds, prices, asks, testLogger())

	require.Len(t, eng.CheckSignals(context.Background()), 1)
	eng.CheckSignals(context.Background()) // acumula un skip already_fired
	require.True(t, eng.HasFired("0xsig"))
	require.NotEmpty(t, eng.Skips("0xsig"))

	eng.Untrack("0xsig")
	assert.False(t, eng.HasFired("0xsig"))
	assert.Empty(t, eng.Skips("0xsig"))
}

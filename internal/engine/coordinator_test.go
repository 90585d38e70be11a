package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amezcua/tightbot/internal/domain"
)

// memOdds es un tracker en memoria con estado real de Add/Remove/SetStrike,
// a diferencia del fakeOdds estático de signal_test.go.
type memOdds struct {
	markets map[string]*domain.Market
	order   []string
}

func newMemOdds() *memOdds {
	return &memOdds{markets: make(map[string]*domain.Market)}
}

func (o *memOdds) Add(m domain.Market) {
	if _, ok := o.markets[m.ConditionID]; ok {
		return
	}
	cp := m
	o.markets[m.ConditionID] = &cp
	o.order = append(o.order, m.ConditionID)
}

func (o *memOdds) Remove(conditionID string) {
	delete(o.markets, conditionID)
	for i, id := range o.order {
		if id == conditionID {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

func (o *memOdds) SetStrike(conditionID string, price float64) bool {
	m, ok := o.markets[conditionID]
	if !ok {
		return false
	}
	return m.SetStrike(price)
}

func (o *memOdds) Profile(conditionID string) (domain.TightnessProfile, bool) {
	m, ok := o.markets[conditionID]
	if !ok {
		return domain.TightnessProfile{}, false
	}
	return domain.TightnessProfile{Market: *m}, true
}

func (o *memOdds) AllProfiles() []domain.TightnessProfile {
	var out []domain.TightnessProfile
	for _, id := range o.order {
		out = append(out, domain.TightnessProfile{Market: *o.markets[id]})
	}
	return out
}

func (o *memOdds) TrackedMarkets() []domain.Market {
	var out []domain.Market
	for _, id := range o.order {
		out = append(out, *o.markets[id])
	}
	return out
}

type fakeSource struct {
	markets []domain.Market
	err     error
	calls   int
}

func (f *fakeSource) FindUpcomingMarkets(_ context.Context) ([]domain.Market, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

type fakeNotifier struct {
	statusCalls int
	reports     []domain.TradeStats
}

func (f *fakeNotifier) Status(_ context.Context, _ []domain.TightnessProfile) error {
	f.statusCalls++
	return nil
}

func (f *fakeNotifier) TradeReport(_ context.Context, stats domain.TradeStats) error {
	f.reports = append(f.reports, stats)
	return nil
}

type coordFixture struct {
	coord    *Coordinator
	source   *fakeSource
	odds     *memOdds
	prices   *fakePrices
	store    *fakeStore
	notifier *fakeNotifier
	signals  *SignalEngine
	executor *Executor
	now      time.Time
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	f := &coordFixture{
		source:   &fakeSource{},
		odds:     newMemOdds(),
		prices:   &fakePrices{latest: map[string]float64{}, sigma: map[string]float64{}},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
	}
	asks := &fakeAsks{asks: map[string]float64{}}
	f.signals = NewSignalEngine(signalTestConfig(), f.odds, f.prices, asks, testLogger())
	f.executor = NewExecutor(executorTestConfig(), &fakePlacer{orderID: "ord"}, f.store, testLogger())

	f.coord = NewCoordinator(
		CoordinatorConfig{
			DiscoveryInterval: 30 * time.Second,
			EntryWindow:       90 * time.Second,
			ExecutionWindow:   15 * time.Second,
			VolatilityWindow:  300 * time.Second,
		},
		f.source, f.prices, f.odds, f.signals, f.executor, f.store, f.notifier, testLogger(),
	)
	f.coord.now = func() time.Time { return f.now }
	f.signals.now = f.coord.now
	f.executor.now = f.coord.now
	return f
}

func coordMarket(id string, endIn time.Duration, now time.Time) domain.Market {
	return domain.Market{
		ConditionID: id,
		Question:    "Bitcoin Up or Down - 3:15 PM ET",
		YesTokenID:  id + "_yes",
		NoTokenID:   id + "_no",
		Asset:       "BTC",
		EndDate:     now.Add(endIn),
	}
}

func TestCoordinator_DiscoveryTracksNewMarketsOnce(t *testing.T) {
	f := newCoordFixture(t)
	f.source.markets = []domain.Market{
		coordMarket("0xa", 5*time.Minute, f.now),
		coordMarket("0xb", 10*time.Minute, f.now),
	}

	f.coord.Tick(context.Background()) // discovery due on the first tick
	require.Len(t, f.odds.TrackedMarkets(), 2)
	assert.Equal(t, 1, f.source.calls)
	assert.Equal(t, 1, f.notifier.statusCalls)

	// Dentro del intervalo no se vuelve a consultar.
	f.now = f.now.Add(10 * time.Second)
	f.coord.Tick(context.Background())
	assert.Equal(t, 1, f.source.calls)

	// Pasado el intervalo sí, sin duplicar los ya trackeados.
	f.now = f.now.Add(25 * time.Second)
	f.coord.Tick(context.Background())
	assert.Equal(t, 2, f.source.calls)
	assert.Len(t, f.odds.TrackedMarkets(), 2)
}

func TestCoordinator_DiscoveryFailureDoesNotStopTick(t *testing.T) {
	f := newCoordFixture(t)
	f.source.err = errors.New("gamma unavailable")

	f.coord.Tick(context.Background())
	assert.Empty(t, f.odds.TrackedMarkets())
	assert.Zero(t, f.notifier.statusCalls)
}

func TestCoordinator_CapturesStrikeAtWindowOpen(t *testing.T) {
	f := newCoordFixture(t)
	open := f.now.Add(-2 * time.Second)
	m := coordMarket("0xstrike", 14*time.Minute, f.now)
	m.WindowOpen = &open
	f.odds.Add(m)
	f.prices.latest["BTC"] = 50123.5

	f.coord.Tick(context.Background())

	tracked := f.odds.TrackedMarkets()
	require.Len(t, tracked, 1)
	require.NotNil(t, tracked[0].Strike)
	assert.Equal(t, 50123.5, *tracked[0].Strike)

	// Un segundo tick no re-captura.
	f.prices.latest["BTC"] = 60000
	f.now = f.now.Add(time.Second)
	f.coord.Tick(context.Background())
	assert.Equal(t, 50123.5, *f.odds.TrackedMarkets()[0].Strike)
}

func TestCoordinator_StrikeNotCapturedBeforeWindowOpen(t *testing.T) {
	f := newCoordFixture(t)
	open := f.now.Add(time.Minute)
	m := coordMarket("0xearly", 16*time.Minute, f.now)
	m.WindowOpen = &open
	f.odds.Add(m)
	f.prices.latest["BTC"] = 50000

	f.coord.Tick(context.Background())
	assert.Nil(t, f.odds.TrackedMarkets()[0].Strike)
}

func TestCoordinator_SweepResolvesExpiredMarket(t *testing.T) {
	f := newCoordFixture(t)
	strike := 50000.0
	m := coordMarket("0xdone", -5*time.Second, f.now) // ya expirado
	m.Strike = &strike
	f.odds.Add(m)
	f.prices.latest["BTC"] = 50100 // final por encima del strike

	loss := -2.0
	f.store.resolved = [][]domain.LedgerEntry{
		{{ID: "t1", ConditionID: "0xdone", Asset: "BTC", Side: domain.SideNo, NetReturn: &loss}},
	}

	f.coord.Tick(context.Background())

	// Mercado retirado del tracking y del engine.
	assert.Empty(t, f.odds.TrackedMarkets())
	assert.False(t, f.signals.HasFired("0xdone"))

	// La pérdida realizada alimenta el contador diario.
	assert.InDelta(t, 2.0, f.executor.DailyLoss(), 1e-9)

	// Shadow audit persistido con el outcome resuelto.
	require.Len(t, f.store.shadows, 1)
	rec := f.store.shadows[0]
	assert.Equal(t, "0xdone", rec.ConditionID)
	require.NotNil(t, rec.Outcome)
	assert.Equal(t, domain.SideYes, *rec.Outcome)
	require.NotNil(t, rec.FinalPrice)
	assert.Equal(t, 50100.0, *rec.FinalPrice)
}

func TestCoordinator_SweepWithoutStrikeStillPersistsShadow(t *testing.T) {
	f := newCoordFixture(t)
	m := coordMarket("0xnostrike", -time.Second, f.now)
	f.odds.Add(m)

	f.coord.Tick(context.Background())

	assert.Empty(t, f.odds.TrackedMarkets())
	require.Len(t, f.store.shadows, 1)
	rec := f.store.shadows[0]
	assert.Nil(t, rec.Outcome)
	assert.Nil(t, rec.FinalPrice)
	assert.False(t, rec.WasTraded)
}

func TestCoordinator_AdaptiveSleep(t *testing.T) {
	f := newCoordFixture(t)

	// Sin mercados cerca de expiración: sleep base.
	f.odds.Add(coordMarket("0xfar", 5*time.Minute, f.now))
	assert.Equal(t, time.Second, f.coord.sleepFor())

	// Un mercado dentro de la ventana de ejecución acelera el loop.
	f.odds.Add(coordMarket("0xnear", 10*time.Second, f.now))
	assert.Equal(t, 200*time.Millisecond, f.coord.sleepFor())

	// Expirado del todo ya no cuenta.
	f.odds.Remove("0xnear")
	f.odds.Add(coordMarket("0xpast", -10*time.Second, f.now))
	assert.Equal(t, time.Second, f.coord.sleepFor())
}

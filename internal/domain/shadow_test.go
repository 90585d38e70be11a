package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shadowMarket(end time.Time) Market {
	strike := 50000.0
	return Market{
		ConditionID: "c1",
		Question:    "Bitcoin Up or Down - 2:00PM-2:15PM ET",
		Asset:       "BTC",
		EndDate:     end,
		Strike:      &strike,
	}
}

// samplesAround genera una muestra por segundo durante los `n` segundos
// previos a end, con precios alternando alrededor del strike.
func samplesAround(end time.Time, n int, prices []float64) []PriceSample {
	out := make([]PriceSample, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, PriceSample{
			Time:  end.Add(-time.Duration(n-i) * time.Second),
			Price: prices[i%len(prices)],
		})
	}
	return out
}

func TestNewShadowRecord_CrossedStrike(t *testing.T) {
	end := time.Now()
	yes := SideYes
	final := 50020.0

	r := NewShadowRecord(ShadowArgs{
		Market:      shadowMarket(end),
		Outcome:     &yes,
		FinalPrice:  &final,
		ExecWindow:  15 * time.Second,
		EntryWindow: 90 * time.Second,
		ExecHistory: samplesAround(end, 15, []float64{49990, 50010}),
		Now:         end,
	})

	assert.True(t, r.CrossedStrike)
	require.NotNil(t, r.MinDistance)
	require.NotNil(t, r.MaxDistance)
	assert.InDelta(t, 10.0, *r.MinDistance, 1e-9)
	assert.InDelta(t, 10.0, *r.MaxDistance, 1e-9)
	require.NotNil(t, r.PriceAtExecStart)
	assert.Equal(t, 49990.0, *r.PriceAtExecStart)
}

func TestNewShadowRecord_NoCrossWhenOneSided(t *testing.T) {
	end := time.Now()
	r := NewShadowRecord(ShadowArgs{
		Market:      shadowMarket(end),
		ExecWindow:  15 * time.Second,
		EntryWindow: 90 * time.Second,
		ExecHistory: samplesAround(end, 15, []float64{50010, 50030, 50050}),
		Now:         end,
	})

	assert.False(t, r.CrossedStrike)
	assert.InDelta(t, 10.0, *r.MinDistance, 1e-9)
	assert.InDelta(t, 50.0, *r.MaxDistance, 1e-9)
}

func TestNewShadowRecord_Momentum(t *testing.T) {
	end := time.Now()
	// Subida constante de $5/s en los últimos segundos.
	var hist []PriceSample
	for i := 10; i >= 1; i-- {
		hist = append(hist, PriceSample{
			Time:  end.Add(-time.Duration(i) * time.Second),
			Price: 50000 + float64(10-i)*5,
		})
	}

	r := NewShadowRecord(ShadowArgs{
		Market:      shadowMarket(end),
		ExecWindow:  15 * time.Second,
		EntryWindow: 90 * time.Second,
		ExecHistory: hist,
		Now:         end,
	})

	require.NotNil(t, r.MomentumLast3s)
	assert.InDelta(t, 5.0, *r.MomentumLast3s, 1e-6)
}

func TestNewShadowRecord_ReversalDetection(t *testing.T) {
	end := time.Now()
	m := shadowMarket(end)
	no := SideNo

	// La mayoría al abrir la ventana de ejecución era YES; resolvió NO.
	snaps := []OddsSnapshot{
		{Time: end.Add(-14 * time.Second), YesAsk: 0.80, NoAsk: 0.22},
		{Time: end.Add(-2 * time.Second), YesAsk: 0.30, NoAsk: 0.72},
	}

	r := NewShadowRecord(ShadowArgs{
		Market:      m,
		Profile:     BuildProfile(m, snaps, 0.10, end),
		Outcome:     &no,
		ExecWindow:  15 * time.Second,
		EntryWindow: 90 * time.Second,
		Now:         end,
	})

	require.NotNil(t, r.MajorityAtExecStart)
	assert.Equal(t, SideYes, *r.MajorityAtExecStart)
	assert.True(t, r.ReversalDetected)
}

func TestNewShadowRecord_NoReversalWhenMajorityWins(t *testing.T) {
	end := time.Now()
	m := shadowMarket(end)
	yes := SideYes

	snaps := []OddsSnapshot{
		{Time: end.Add(-14 * time.Second), YesAsk: 0.80, NoAsk: 0.22},
	}

	r := NewShadowRecord(ShadowArgs{
		Market:      m,
		Profile:     BuildProfile(m, snaps, 0.10, end),
		Outcome:     &yes,
		ExecWindow:  15 * time.Second,
		EntryWindow: 90 * time.Second,
		Now:         end,
	})

	assert.False(t, r.ReversalDetected)
}

func TestNewShadowRecord_TrailSampling(t *testing.T) {
	end := time.Now().Truncate(time.Second)

	// Cuatro muestras en el mismo segundo → un solo punto en el trail.
	sameSecond := end.Add(-5 * time.Second)
	hist := []PriceSample{
		{Time: sameSecond, Price: 50001},
		{Time: sameSecond.Add(200 * time.Millisecond), Price: 50002},
		{Time: sameSecond.Add(400 * time.Millisecond), Price: 50003},
		{Time: sameSecond.Add(600 * time.Millisecond), Price: 50004},
	}

	r := NewShadowRecord(ShadowArgs{
		Market:      shadowMarket(end),
		ExecWindow:  15 * time.Second,
		EntryWindow: 90 * time.Second,
		ExecHistory: hist,
		Now:         end,
	})

	assert.Len(t, r.PriceTrailExec, 1)
	assert.Equal(t, 50001.0, r.PriceTrailExec[0].Price)
	// Distancia al strike incluida porque hay strike
	assert.InDelta(t, 1.0, r.PriceTrailExec[0].Distance, 1e-9)
}

func TestNewShadowRecord_CarriesProfileAndSkips(t *testing.T) {
	end := time.Now()
	m := shadowMarket(end)
	skips := []SkipRecord{
		{Reason: SkipNoStrike},
		{Reason: SkipLowVolatility},
	}
	snaps := []OddsSnapshot{
		{Time: end.Add(-10 * time.Second), YesAsk: 0.52, NoAsk: 0.50},
		{Time: end.Add(-5 * time.Second), YesAsk: 0.54, NoAsk: 0.48},
	}

	r := NewShadowRecord(ShadowArgs{
		Market:      m,
		Profile:     BuildProfile(m, snaps, 0.10, end),
		WasTraded:   true,
		ExecWindow:  15 * time.Second,
		EntryWindow: 90 * time.Second,
		Skips:       skips,
		Now:         end,
	})

	assert.Equal(t, "c1", r.ConditionID)
	assert.True(t, r.WasTraded)
	assert.Equal(t, 2, r.TotalSnapshots)
	assert.Equal(t, 0.54, r.FinalYes)
	assert.Len(t, r.Skips, 2)
	assert.Equal(t, end, r.CreatedAt)
}

package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amezcua/tightbot/internal/domain"
)

func testMarket(id string) domain.Market {
	return domain.Market{
		ConditionID: id,
		Question:    "Bitcoin Up or Down - 2:00PM-2:15PM ET",
		YesTokenID:  id + "_yes",
		NoTokenID:   id + "_no",
		EndDate:     time.Now().Add(10 * time.Minute),
		Asset:       "BTC",
	}
}

func newTestTracker() *OddsTracker {
	return NewOddsTracker(OddsConfig{TightnessThreshold: 0.10}, testLogger())
}

func TestOddsTracker_AddIdempotent(t *testing.T) {
	tr := newTestTracker()
	m := testMarket("c1")

	tr.Add(m)
	tr.Add(m)
	assert.Len(t, tr.TrackedMarkets(), 1)
}

func TestOddsTracker_Remove(t *testing.T) {
	tr := newTestTracker()
	tr.Add(testMarket("c1"))
	tr.Add(testMarket("c2"))

	tr.Remove("c1")
	markets := tr.TrackedMarkets()
	require.Len(t, markets, 1)
	assert.Equal(t, "c2", markets[0].ConditionID)

	// Los updates del mercado eliminado se ignoran
	tr.handleBookUpdate("c1_yes", 0.60)
	_, ok := tr.Profile("c1")
	assert.False(t, ok)
}

func TestOddsTracker_SnapshotNeedsBothSides(t *testing.T) {
	tr := newTestTracker()
	tr.Add(testMarket("c1"))

	// Solo YES conocido: sin snapshot
	tr.handleBookUpdate("c1_yes", 0.60)
	p, ok := tr.Profile("c1")
	require.True(t, ok)
	assert.Empty(t, p.Snapshots)
	assert.Equal(t, 0.5, p.CurrentYes) // perfil neutro

	// Llega el NO: primer snapshot
	tr.handleBookUpdate("c1_no", 0.42)
	p, _ = tr.Profile("c1")
	require.Len(t, p.Snapshots, 1)
	assert.Equal(t, 0.60, p.CurrentYes)
	assert.Equal(t, 0.42, p.CurrentNo)

	// Updates posteriores de un solo lado generan snapshots con el último
	// valor conocido del otro
	tr.handleBookUpdate("c1_yes", 0.65)
	p, _ = tr.Profile("c1")
	require.Len(t, p.Snapshots, 2)
	assert.Equal(t, 0.65, p.CurrentYes)
	assert.Equal(t, 0.42, p.CurrentNo)
}

func TestOddsTracker_IgnoresInvalidAsk(t *testing.T) {
	tr := newTestTracker()
	tr.Add(testMarket("c1"))

	tr.handleBookUpdate("c1_yes", 0)
	tr.handleBookUpdate("c1_no", -1)
	p, _ := tr.Profile("c1")
	assert.Empty(t, p.Snapshots)
}

func TestOddsTracker_SetStrikeOnce(t *testing.T) {
	tr := newTestTracker()
	tr.Add(testMarket("c1"))

	assert.True(t, tr.SetStrike("c1", 50000))
	assert.False(t, tr.SetStrike("c1", 60000))
	assert.False(t, tr.SetStrike("unknown", 1))

	markets := tr.TrackedMarkets()
	require.NotNil(t, markets[0].Strike)
	assert.Equal(t, 50000.0, *markets[0].Strike)
}

func TestOddsTracker_ProfileUsesThreshold(t *testing.T) {
	tr := newTestTracker()
	tr.Add(testMarket("c1"))

	tr.handleBookUpdate("c1_yes", 0.52) // spread 0.02: tight
	tr.handleBookUpdate("c1_no", 0.50)
	tr.handleBookUpdate("c1_yes", 0.80) // spread 0.30

	p, _ := tr.Profile("c1")
	require.Len(t, p.Snapshots, 2)
	assert.InDelta(t, 0.5, p.TightRatio, 1e-9)
}

func TestOddsTracker_AllProfiles(t *testing.T) {
	tr := newTestTracker()
	tr.Add(testMarket("c1"))
	tr.Add(testMarket("c2"))

	profiles := tr.AllProfiles()
	assert.Len(t, profiles, 2)
}

func TestOddsTracker_ProfileSnapshotIsolation(t *testing.T) {
	tr := newTestTracker()
	tr.Add(testMarket("c1"))
	tr.handleBookUpdate("c1_yes", 0.60)
	tr.handleBookUpdate("c1_no", 0.42)

	p1, _ := tr.Profile("c1")
	require.Len(t, p1.Snapshots, 1)

	// Mutar la copia devuelta no afecta al estado interno
	p1.Snapshots[0].YesAsk = 0.99
	p2, _ := tr.Profile("c1")
	assert.Equal(t, 0.60, p2.Snapshots[0].YesAsk)
}

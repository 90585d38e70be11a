package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
)

// odds.go — estado del tracker de odds. Una sola suscripción websocket
// multiplexada sobre todos los token ids trackeados; la parte de red vive en
// odds_ws.go y entrega updates vía handleBookUpdate.

// OddsConfig configura el tracker de odds.
type OddsConfig struct {
	WSURL string

	// TightnessThreshold es el spread máximo para contar un snapshot como
	// "tight" en el perfil.
	TightnessThreshold float64

	// SubscribeBatchSize es el máximo de token ids por mensaje de subscribe.
	SubscribeBatchSize int

	// ReconnectDelay es la espera fija entre reconexiones.
	ReconnectDelay time.Duration
}

func (c OddsConfig) withDefaults() OddsConfig {
	if c.WSURL == "" {
		c.WSURL = defaultMarketWSURL
	}
	if c.TightnessThreshold <= 0 {
		c.TightnessThreshold = 0.10
	}
	if c.SubscribeBatchSize <= 0 {
		c.SubscribeBatchSize = 50
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	return c
}

// marketState es el estado mutable de un mercado trackeado. Los snapshots
// son append-only; el strike se fija una sola vez.
type marketState struct {
	market    domain.Market
	yesAsk    *float64
	noAsk     *float64
	snapshots []domain.OddsSnapshot
}

// OddsTracker mantiene los mejores asks YES/NO por mercado trackeado.
// Implementa ports.OddsTracker y es el registro de mercados vivos.
type OddsTracker struct {
	cfg OddsConfig
	log *slog.Logger
	now func() time.Time

	mu         sync.Mutex
	states     map[string]*marketState // conditionID → estado
	tokenIndex map[string]string       // tokenID → conditionID

	// resub despierta el loop websocket para resuscribir con el set de
	// tokens actualizado tras un Add/Remove.
	resub chan struct{}

	connMu sync.Mutex
	conn   interface{ Close() error }
}

// NewOddsTracker crea el tracker.
func NewOddsTracker(cfg OddsConfig, log *slog.Logger) *OddsTracker {
	return &OddsTracker{
		cfg:        cfg.withDefaults(),
		log:        log,
		now:        time.Now,
		states:     make(map[string]*marketState),
		tokenIndex: make(map[string]string),
		resub:      make(chan struct{}, 1),
	}
}

// Add empieza a trackear un mercado. Idempotente por conditionID.
func (t *OddsTracker) Add(m domain.Market) {
	t.mu.Lock()
	if _, exists := t.states[m.ConditionID]; exists {
		t.mu.Unlock()
		return
	}
	t.states[m.ConditionID] = &marketState{market: m}
	t.tokenIndex[m.YesTokenID] = m.ConditionID
	t.tokenIndex[m.NoTokenID] = m.ConditionID
	total := len(t.states)
	t.mu.Unlock()

	t.log.Info("tracking market",
		"asset", m.Asset,
		"question", domain.TruncateQuestion(m.Question, m.ConditionID, 50),
		"ends_in", m.EndDate.Sub(t.now()).Round(time.Second),
		"tracked", total,
	)
	t.requestResubscribe()
}

// Remove deja de trackear un mercado y descarta su historia.
func (t *OddsTracker) Remove(conditionID string) {
	t.mu.Lock()
	state, ok := t.states[conditionID]
	if ok {
		delete(t.tokenIndex, state.market.YesTokenID)
		delete(t.tokenIndex, state.market.NoTokenID)
		delete(t.states, conditionID)
	}
	t.mu.Unlock()

	if ok {
		t.requestResubscribe()
	}
}

// SetStrike fija el strike del mercado una única vez.
func (t *OddsTracker) SetStrike(conditionID string, price float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[conditionID]
	if !ok {
		return false
	}
	return state.market.SetStrike(price)
}

// Profile calcula el perfil de tightness del mercado sobre una copia de los
// snapshots — nunca bajo el lock del writer más tiempo que la copia.
func (t *OddsTracker) Profile(conditionID string) (domain.TightnessProfile, bool) {
	t.mu.Lock()
	state, ok := t.states[conditionID]
	if !ok {
		t.mu.Unlock()
		return domain.TightnessProfile{}, false
	}
	m := state.market
	snaps := make([]domain.OddsSnapshot, len(state.snapshots))
	copy(snaps, state.snapshots)
	t.mu.Unlock()

	return domain.BuildProfile(m, snaps, t.cfg.TightnessThreshold, t.now()), true
}

// AllProfiles devuelve el perfil de cada mercado trackeado.
func (t *OddsTracker) AllProfiles() []domain.TightnessProfile {
	t.mu.Lock()
	ids := make([]string, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	profiles := make([]domain.TightnessProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := t.Profile(id); ok {
			profiles = append(profiles, p)
		}
	}
	return profiles
}

// TrackedMarkets devuelve copias de los mercados trackeados.
func (t *OddsTracker) TrackedMarkets() []domain.Market {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Market, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, s.market)
	}
	return out
}

// handleBookUpdate procesa el mejor ask de un token. Registra un snapshot
// solo cuando ambos lados tienen valor conocido.
func (t *OddsTracker) handleBookUpdate(tokenID string, bestAsk float64) {
	if bestAsk <= 0 {
		return
	}
	now := t.now()

	t.mu.Lock()
	conditionID, ok := t.tokenIndex[tokenID]
	if !ok {
		t.mu.Unlock()
		return
	}
	state := t.states[conditionID]

	side, _ := state.market.TokenSide(tokenID)
	ask := bestAsk
	if side == domain.SideYes {
		state.yesAsk = &ask
	} else {
		state.noAsk = &ask
	}

	if state.yesAsk == nil || state.noAsk == nil {
		t.mu.Unlock()
		return
	}

	snap := domain.OddsSnapshot{Time: now, YesAsk: *state.yesAsk, NoAsk: *state.noAsk}
	state.snapshots = append(state.snapshots, snap)
	m := state.market
	t.mu.Unlock()

	// Cerca de la expiración cada update importa; antes, silencio.
	if remaining := m.SecondsRemaining(now); remaining <= 15 {
		t.log.Info("odds update",
			"asset", m.Asset,
			"yes", snap.YesAsk,
			"no", snap.NoAsk,
			"spread", snap.Spread(),
			"remaining", remaining,
		)
	}
}

// tokenIDs devuelve el set actual de tokens a suscribir.
func (t *OddsTracker) tokenIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.tokenIndex))
	for id := range t.tokenIndex {
		out = append(out, id)
	}
	return out
}

// requestResubscribe fuerza una reconexión con el set de tokens actualizado.
func (t *OddsTracker) requestResubscribe() {
	select {
	case t.resub <- struct{}{}:
	default: // ya hay una pendiente
	}
	t.connMu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.connMu.Unlock()
}

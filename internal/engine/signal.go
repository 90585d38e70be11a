package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
	"github.com/amezcua/tightbot/internal/ports"
)

// signal.go — wrapper con estado de la evaluación pura de domain.Evaluate:
// el fired set (un mercado nunca dispara dos veces) y el skip log por
// mercado. Cada tick de cada mercado termina en exactamente uno de
// {fired, skip-con-reason} — nunca ambos, nunca ninguno.

// SignalConfig configura el signal engine.
type SignalConfig struct {
	Eval             domain.EvalConfig
	VolatilityWindow time.Duration
	Stake            float64 // USDC por disparo
}

// SignalEngine evalúa la señal de cada mercado trackeado una vez por tick
// del coordinator.
type SignalEngine struct {
	cfg    SignalConfig
	log    *slog.Logger
	odds   ports.OddsTracker
	prices ports.PriceAnalytics
	asks   ports.AskProvider
	now    func() time.Time

	mu    sync.Mutex
	fired map[string]bool
	skips map[string][]domain.SkipRecord
}

// NewSignalEngine crea el engine con sus dependencias inyectadas.
func NewSignalEngine(
	cfg SignalConfig,
	odds ports.OddsTracker,
	prices ports.PriceAnalytics,
	asks ports.AskProvider,
	log *slog.Logger,
) *SignalEngine {
	return &SignalEngine{
		cfg:    cfg,
		log:    log,
		odds:   odds,
		prices: prices,
		asks:   asks,
		now:    time.Now,
		fired:  make(map[string]bool),
		skips:  make(map[string][]domain.SkipRecord),
	}
}

// CheckSignals evalúa todos los mercados trackeados y devuelve las
// oportunidades que pasaron todos los gates. Las consultas de asks vía REST
// bloquean el loop del coordinator — simplicidad sobre latencia.
func (e *SignalEngine) CheckSignals(ctx context.Context) []domain.Opportunity {
	var opportunities []domain.Opportunity

	for _, profile := range e.odds.AllProfiles() {
		if opp, ok := e.evaluateMarket(ctx, profile); ok {
			opportunities = append(opportunities, opp)
		}
	}
	return opportunities
}

// evaluateMarket ejecuta un tick de evaluación para un mercado: recolecta
// los inputs en el orden de los gates (los asks REST solo se consultan si
// los gates baratos ya pasaron) y delega el veredicto a domain.Evaluate.
func (e *SignalEngine) evaluateMarket(ctx context.Context, profile domain.TightnessProfile) (domain.Opportunity, bool) {
	m := profile.Market
	now := e.now()

	in := domain.EvalInputs{
		AlreadyFired:     e.hasFired(m.ConditionID),
		SecondsRemaining: profile.SecondsRemaining,
	}
	if m.Strike != nil {
		in.Strike = *m.Strike
		in.StrikeKnown = true
	}

	// Solo pagar el coste de feed/REST si los gates locales pueden pasar.
	cheapPass := !in.AlreadyFired && in.StrikeKnown &&
		in.SecondsRemaining >= e.cfg.Eval.MinSecondsRemaining &&
		in.SecondsRemaining <= e.cfg.Eval.EntryWindow

	if cheapPass {
		in.Spot, in.SpotKnown = e.prices.Latest(m.Asset)
		in.Sigma, in.SigmaKnown = e.prices.Volatility(m.Asset, e.cfg.VolatilityWindow)
	}

	if cheapPass && in.SpotKnown && in.SigmaKnown && in.Sigma >= e.cfg.Eval.MinVolatility {
		in.YesAsk, in.NoAsk, in.AsksKnown = e.fetchAsks(ctx, m)
	}

	result := domain.Evaluate(in, e.cfg.Eval)

	if !result.Fired {
		e.recordSkip(m, in, result.Reason, now)
		return domain.Opportunity{}, false
	}

	e.markFired(m.ConditionID)
	opp := domain.Opportunity{
		Market:     m,
		Profile:    profile,
		Side:       result.Side,
		Ask:        result.Ask,
		Stake:      e.cfg.Stake,
		Strike:     in.Strike,
		Spot:       in.Spot,
		ModelProb:  result.ModelProb,
		MarketProb: result.MarketProb,
		Edge:       result.Edge,
		Volatility: in.Sigma,
		CreatedAt:  now,
	}

	e.log.Info("signal fired",
		"asset", m.Asset,
		"question", domain.TruncateQuestion(m.Question, m.ConditionID, 50),
		"side", result.Side,
		"ask", result.Ask,
		"model_prob", result.ModelProb,
		"edge", result.Edge,
		"spot", in.Spot,
		"strike", in.Strike,
		"remaining", in.SecondsRemaining,
	)
	return opp, true
}

// fetchAsks consulta los mejores asks de ambos lados vía REST.
func (e *SignalEngine) fetchAsks(ctx context.Context, m domain.Market) (yes, no float64, ok bool) {
	yes, err := e.asks.BestAsk(ctx, m.YesTokenID)
	if err != nil {
		e.log.Debug("best ask lookup failed", "token", m.YesTokenID, "err", err)
		return 0, 0, false
	}
	no, err = e.asks.BestAsk(ctx, m.NoTokenID)
	if err != nil {
		e.log.Debug("best ask lookup failed", "token", m.NoTokenID, "err", err)
		return 0, 0, false
	}
	return yes, no, true
}

// recordSkip añade el SkipRecord del tick al log del mercado.
func (e *SignalEngine) recordSkip(m domain.Market, in domain.EvalInputs, reason domain.SkipReason, now time.Time) {
	rec := domain.SkipRecord{
		Time:             now,
		ConditionID:      m.ConditionID,
		Reason:           reason,
		Spot:             in.Spot,
		Strike:           in.Strike,
		Volatility:       in.Sigma,
		ModelProb:        domain.ModelProb(in.Spot, in.Strike, in.Sigma, in.SecondsRemaining),
		SecondsRemaining: in.SecondsRemaining,
		YesAsk:           in.YesAsk,
		NoAsk:            in.NoAsk,
	}

	e.mu.Lock()
	e.skips[m.ConditionID] = append(e.skips[m.ConditionID], rec)
	e.mu.Unlock()

	e.log.Debug("signal skip",
		"asset", m.Asset,
		"reason", reason,
		"remaining", in.SecondsRemaining,
	)
}

// Skips devuelve el skip log acumulado del mercado.
func (e *SignalEngine) Skips(conditionID string) []domain.SkipRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.SkipRecord, len(e.skips[conditionID]))
	copy(out, e.skips[conditionID])
	return out
}

// HasFired devuelve true si el mercado ya disparó en su vida trackeada.
func (e *SignalEngine) HasFired(conditionID string) bool {
	return e.hasFired(conditionID)
}

// Untrack descarta el estado del mercado (tras persistir el shadow audit).
func (e *SignalEngine) Untrack(conditionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.fired, conditionID)
	delete(e.skips, conditionID)
}

func (e *SignalEngine) hasFired(conditionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fired[conditionID]
}

func (e *SignalEngine) markFired(conditionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fired[conditionID] = true
}

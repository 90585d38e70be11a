package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
	"github.com/amezcua/tightbot/internal/ports"
)

// coordinator.go — el actor loop de la estrategia. Un solo hilo secuencia
// descubrimiento → barrido de expirados → captura de strikes → evaluación →
// ejecución → sleep adaptativo. Los errores de un tick se loguean y no
// paran el loop: un tick malo solo retrasa el siguiente.

// CoordinatorConfig configura el loop.
type CoordinatorConfig struct {
	DiscoveryInterval time.Duration
	EntryWindow       time.Duration
	ExecutionWindow   time.Duration
	VolatilityWindow  time.Duration

	// BaseSleep es el sleep normal entre ticks; FastSleep se usa cuando
	// algún mercado trackeado está dentro de su ventana de ejecución.
	BaseSleep time.Duration
	FastSleep time.Duration
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 30 * time.Second
	}
	if c.EntryWindow <= 0 {
		c.EntryWindow = 120 * time.Second
	}
	if c.ExecutionWindow <= 0 {
		c.ExecutionWindow = 15 * time.Second
	}
	if c.VolatilityWindow <= 0 {
		c.VolatilityWindow = 300 * time.Second
	}
	if c.BaseSleep <= 0 {
		c.BaseSleep = time.Second
	}
	if c.FastSleep <= 0 {
		c.FastSleep = 200 * time.Millisecond
	}
	return c
}

// Coordinator orquesta la estrategia completa sobre sus colaboradores.
type Coordinator struct {
	cfg      CoordinatorConfig
	log      *slog.Logger
	source   ports.MarketSource
	prices   ports.PriceAnalytics
	odds     ports.OddsTracker
	signals  *SignalEngine
	executor *Executor
	store    ports.Storage
	notifier ports.Notifier
	now      func() time.Time

	lastDiscovery time.Time
}

// NewCoordinator crea el coordinator con todas las dependencias inyectadas.
func NewCoordinator(
	cfg CoordinatorConfig,
	source ports.MarketSource,
	prices ports.PriceAnalytics,
	odds ports.OddsTracker,
	signals *SignalEngine,
	executor *Executor,
	store ports.Storage,
	notifier ports.Notifier,
	log *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg.withDefaults(),
		log:      log,
		source:   source,
		prices:   prices,
		odds:     odds,
		signals:  signals,
		executor: executor,
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run ejecuta el loop hasta que el contexto se cancele.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("coordinator starting",
		"discovery_interval", c.cfg.DiscoveryInterval,
		"entry_window", c.cfg.EntryWindow,
	)

	// Descubrimiento inicial inmediato.
	c.discover(ctx)
	c.lastDiscovery = c.now()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("coordinator stopped")
			return nil
		case <-time.After(c.sleepFor()):
		}

		c.Tick(ctx)
	}
}

// Tick ejecuta una pasada completa del loop. Cada fase captura sus propios
// errores — run-to-completion por tick.
func (c *Coordinator) Tick(ctx context.Context) {
	now := c.now()

	if now.Sub(c.lastDiscovery) >= c.cfg.DiscoveryInterval {
		c.discover(ctx)
		c.lastDiscovery = now
	}

	c.sweepExpired(ctx)
	c.captureStrikes()
	c.evaluateAndExecute(ctx)
}

// discover consulta el MarketSource y trackea los mercados nuevos. También
// imprime el status de los trackeados.
func (c *Coordinator) discover(ctx context.Context) {
	markets, err := c.source.FindUpcomingMarkets(ctx)
	if err != nil {
		c.log.Error("discovery failed", "err", err)
		return
	}

	tracked := make(map[string]bool)
	for _, m := range c.odds.TrackedMarkets() {
		tracked[m.ConditionID] = true
	}

	added := 0
	for _, m := range markets {
		if !tracked[m.ConditionID] {
			c.odds.Add(m)
			added++
		}
	}
	if added > 0 {
		c.log.Info("new markets tracked", "added", added, "total", len(tracked)+added)
	}

	if profiles := c.odds.AllProfiles(); len(profiles) > 0 {
		if err := c.notifier.Status(ctx, profiles); err != nil {
			c.log.Warn("notifier error", "err", err)
		}
	}
}

// sweepExpired procesa cada mercado pasado de expiración: snapshot de su
// historia ANTES de quitarlo, resolución del outcome contra el price feed,
// enriquecimiento del ledger, persistencia del shadow audit y teardown.
func (c *Coordinator) sweepExpired(ctx context.Context) {
	now := c.now()
	for _, m := range c.odds.TrackedMarkets() {
		if !m.Expired(now) {
			continue
		}

		profile, _ := c.odds.Profile(m.ConditionID)
		skips := c.signals.Skips(m.ConditionID)
		wasTraded := c.signals.HasFired(m.ConditionID)

		var outcomePtr *domain.Side
		var finalPtr *float64
		if m.Strike != nil {
			if final, ok := c.prices.PriceAt(m.Asset, m.EndDate); ok {
				outcome := domain.SideNo
				if final > *m.Strike {
					outcome = domain.SideYes
				}
				outcomePtr = &outcome
				finalPtr = &final

				if err := c.executor.Resolve(ctx, m.ConditionID, outcome, final); err != nil {
					c.log.Error("resolve failed", "condition_id", m.ConditionID, "err", err)
				}
				c.log.Info("market resolved",
					"asset", m.Asset,
					"strike", *m.Strike,
					"final", final,
					"outcome", outcome,
				)
			} else {
				c.log.Warn("no final price for resolution", "asset", m.Asset, "condition_id", m.ConditionID)
			}
		}

		c.persistShadow(ctx, m, profile, skips, outcomePtr, finalPtr, wasTraded, now)

		c.odds.Remove(m.ConditionID)
		c.signals.Untrack(m.ConditionID)
		c.log.Info("market expired",
			"asset", m.Asset,
			"question", domain.TruncateQuestion(m.Question, m.ConditionID, 50),
			"skips", len(skips),
			"traded", wasTraded,
		)
	}
}

// persistShadow construye y guarda el registro de auditoría del mercado.
func (c *Coordinator) persistShadow(
	ctx context.Context,
	m domain.Market,
	profile domain.TightnessProfile,
	skips []domain.SkipRecord,
	outcome *domain.Side,
	finalPrice *float64,
	wasTraded bool,
	now time.Time,
) {
	execStart := m.EndDate.Add(-c.cfg.ExecutionWindow)
	entryStart := m.EndDate.Add(-c.cfg.EntryWindow)

	args := domain.ShadowArgs{
		Market:       m,
		Profile:      profile,
		Outcome:      outcome,
		FinalPrice:   finalPrice,
		WasTraded:    wasTraded,
		ExecWindow:   c.cfg.ExecutionWindow,
		EntryWindow:  c.cfg.EntryWindow,
		ExecHistory:  c.prices.History(m.Asset, execStart, m.EndDate),
		EntryHistory: c.prices.History(m.Asset, entryStart, m.EndDate),
		Skips:        skips,
		Now:          now,
	}
	if sigma, ok := c.prices.Volatility(m.Asset, c.cfg.VolatilityWindow); ok {
		args.Volatility = &sigma
	}
	if em, ok := c.prices.ExpectedMove(m.Asset, c.cfg.ExecutionWindow.Seconds(), c.cfg.VolatilityWindow); ok {
		args.ExpectedMove = &em
	}

	if err := c.store.SaveShadow(ctx, domain.NewShadowRecord(args)); err != nil {
		c.log.Error("shadow audit write failed", "condition_id", m.ConditionID, "err", err)
	}
}

// captureStrikes fija el strike de los mercados cuya ventana ya abrió, una
// única vez, desde el precio spot del instante de apertura.
func (c *Coordinator) captureStrikes() {
	now := c.now()
	for _, m := range c.odds.TrackedMarkets() {
		if m.Strike != nil || !m.WindowOpened(now) {
			continue
		}
		price, ok := c.prices.PriceAt(m.Asset, *m.WindowOpen)
		if !ok {
			continue
		}
		if c.odds.SetStrike(m.ConditionID, price) {
			c.log.Info("strike captured",
				"asset", m.Asset,
				"strike", price,
				"question", domain.TruncateQuestion(m.Question, m.ConditionID, 50),
			)
		}
	}
}

// evaluateAndExecute corre la evaluación de señales y despacha cada
// oportunidad al executor.
func (c *Coordinator) evaluateAndExecute(ctx context.Context) {
	for _, opp := range c.signals.CheckSignals(ctx) {
		result, err := c.executor.Execute(ctx, opp)
		if err != nil {
			c.log.Error("executor error", "condition_id", opp.Market.ConditionID, "err", err)
			continue
		}
		if result.Rejected {
			c.log.Warn("execution rejected",
				"condition_id", opp.Market.ConditionID,
				"reason", result.RejectReason,
			)
		}
	}
}

// sleepFor devuelve el sleep adaptativo: corto cuando algún mercado está
// dentro de su ventana de ejecución.
func (c *Coordinator) sleepFor() time.Duration {
	now := c.now()
	for _, m := range c.odds.TrackedMarkets() {
		remaining := m.SecondsRemaining(now)
		if remaining > 0 && remaining <= c.cfg.ExecutionWindow.Seconds() {
			return c.cfg.FastSleep
		}
	}
	return c.cfg.BaseSleep
}

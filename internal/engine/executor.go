package engine

// executor.go — risk-gated order execution with a latching daily kill switch.
//
// State machine: Armed → Killed once the cumulative same-day charged/realized
// loss reaches the ceiling. Killed is sticky for the rest of the UTC day and
// resets automatically on the first call after day rollover. While killed,
// Execute rejects immediately: no order attempt, no ledger write.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amezcua/tightbot/internal/domain"
	"github.com/amezcua/tightbot/internal/ports"
)

// ExecutorConfig configures the executor's risk controls.
type ExecutorConfig struct {
	// MaxDailyLoss is the USD ceiling of charged+realized loss per UTC day.
	MaxDailyLoss float64

	// FailLossFraction is the fraction of stake charged to the daily loss
	// counter when an order placement fails: an execution whose outcome is
	// unknown cannot be assumed lossless. Placeholder policy pending
	// confirmation with the strategy owner.
	FailLossFraction float64

	// DryRun runs the identical decision/ledger path without touching the
	// venue.
	DryRun bool
}

// Result is the outcome of one Execute call.
type Result struct {
	Entry        domain.LedgerEntry
	Rejected     bool
	RejectReason string
}

// Executor converts opportunities into orders (or recorded simulations)
// under the daily loss ceiling. One exclusive lock serializes
// decide-and-record: at most one in-flight execution per instance.
type Executor struct {
	cfg    ExecutorConfig
	log    *slog.Logger
	orders ports.OrderPlacer
	store  ports.Storage
	now    func() time.Time

	mu        sync.Mutex
	dailyLoss float64
	day       string // UTC date of the counters, "2006-01-02"
	killed    bool
}

// NewExecutor creates an executor with its dependencies injected.
func NewExecutor(cfg ExecutorConfig, orders ports.OrderPlacer, store ports.Storage, log *slog.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		log:    log,
		orders: orders,
		store:  store,
		now:    time.Now,
	}
}

// Execute places (or simulates) a single order for the opportunity's chosen
// side and stake, and records the ledger entry.
func (x *Executor) Execute(ctx context.Context, opp domain.Opportunity) (Result, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.maybeResetDay()

	if x.killed {
		x.log.Warn("execution rejected: kill switch active", "daily_loss", x.dailyLoss)
		return Result{Rejected: true, RejectReason: "kill switch active"}, nil
	}

	if x.dailyLoss >= x.cfg.MaxDailyLoss {
		x.killed = true
		x.log.Error("KILL SWITCH: daily loss ceiling reached",
			"daily_loss", x.dailyLoss,
			"ceiling", x.cfg.MaxDailyLoss,
		)
		return Result{Rejected: true, RejectReason: "daily loss ceiling reached"}, nil
	}

	entry := domain.LedgerEntry{
		ID:          uuid.New().String(),
		ConditionID: opp.Market.ConditionID,
		Question:    opp.Market.Question,
		Asset:       opp.Market.Asset,
		Side:        opp.Side,
		Ask:         opp.Ask,
		Stake:       opp.Stake,
		Strike:      opp.Strike,
		SpotAtEntry: opp.Spot,
		ModelProb:   opp.ModelProb,
		MarketProb:  opp.MarketProb,
		Edge:        opp.Edge,
		Volatility:  opp.Volatility,
		DryRun:      x.cfg.DryRun,
		PlacedAt:    x.now(),
	}

	if x.cfg.DryRun {
		entry.Success = true
		x.log.Info("[DRY RUN] would place order",
			"asset", opp.Market.Asset,
			"side", opp.Side,
			"ask", opp.Ask,
			"stake", opp.Stake,
		)
		if err := x.store.SaveTrade(ctx, entry); err != nil {
			return Result{Entry: entry}, fmt.Errorf("executor.Execute: save trade: %w", err)
		}
		return Result{Entry: entry}, nil
	}

	tokenID := opp.Market.YesTokenID
	if opp.Side == domain.SideNo {
		tokenID = opp.Market.NoTokenID
	}

	orderID, err := x.orders.PlaceMarketOrder(ctx, tokenID, opp.Stake)
	if err != nil {
		// Unknown-outcome failure: charge a fraction of stake, no retry —
		// retrying an ambiguous failure risks a duplicate fill.
		charge := opp.Stake * x.cfg.FailLossFraction
		x.dailyLoss += charge
		entry.Error = err.Error()
		x.log.Error("order placement failed",
			"asset", opp.Market.Asset,
			"side", opp.Side,
			"charged", charge,
			"daily_loss", x.dailyLoss,
			"err", err,
		)
	} else {
		entry.OrderID = orderID
		entry.Success = true
		x.log.Info("order placed",
			"asset", opp.Market.Asset,
			"side", opp.Side,
			"ask", opp.Ask,
			"stake", opp.Stake,
			"order_id", orderID,
		)
	}

	if saveErr := x.store.SaveTrade(ctx, entry); saveErr != nil {
		return Result{Entry: entry}, fmt.Errorf("executor.Execute: save trade: %w", saveErr)
	}
	return Result{Entry: entry}, nil
}

// Resolve enriches the market's unresolved ledger entries with the outcome
// and feeds realized losses into the daily counter. Idempotent: entries
// already resolved are untouched.
func (x *Executor) Resolve(ctx context.Context, conditionID string, outcome domain.Side, finalPrice float64) error {
	resolved, err := x.store.ResolveTrades(ctx, conditionID, outcome, finalPrice)
	if err != nil {
		return fmt.Errorf("executor.Resolve: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.maybeResetDay()

	for _, entry := range resolved {
		if entry.NetReturn == nil {
			continue
		}
		net := *entry.NetReturn
		if net < 0 {
			x.dailyLoss += -net
		}
		x.log.Info("trade resolved",
			"asset", entry.Asset,
			"side", entry.Side,
			"outcome", outcome,
			"net", net,
			"daily_loss", x.dailyLoss,
		)
	}
	return nil
}

// DailyLoss returns the current day's charged+realized loss.
func (x *Executor) DailyLoss() float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.dailyLoss
}

// maybeResetDay clears the counters on UTC day rollover. Caller holds the lock.
func (x *Executor) maybeResetDay() {
	today := x.now().UTC().Format("2006-01-02")
	if x.day == "" {
		x.day = today
		return
	}
	if today != x.day {
		x.day = today
		x.dailyLoss = 0
		x.killed = false
		x.log.Info("daily loss counter reset", "day", today)
	}
}

package domain

import "time"

// LedgerEntry is a persisted trade record. Created at execution time with the
// outcome fields nil; enriched exactly once when the market resolves.
type LedgerEntry struct {
	ID          string // UUID (local tracking)
	ConditionID string
	Question    string
	Asset       string
	Side        Side
	Ask         float64
	Stake       float64 // USDC
	Strike      float64
	SpotAtEntry float64
	ModelProb   float64
	MarketProb  float64
	Edge        float64
	Volatility  float64
	OrderID     string // venue order ID, empty on dry run or failure
	Success     bool
	Error       string
	DryRun      bool
	PlacedAt    time.Time

	// Resolution fields — nil until the market resolves.
	Outcome    *Side
	FinalPrice *float64
	Payout     *float64
	NetReturn  *float64
	ResolvedAt *time.Time
}

// Settle fills the resolution fields from the market outcome. A winning stake
// of $s at ask $a buys s/a shares paying $1 each; a losing stake pays zero.
// Failed executions settle with zero payout and zero net (no position held).
func (e *LedgerEntry) Settle(outcome Side, finalPrice float64, at time.Time) {
	payout, net := 0.0, 0.0
	if e.Success {
		if e.Side == outcome && e.Ask > 0 {
			payout = e.Stake / e.Ask
			net = payout - e.Stake
		} else {
			net = -e.Stake
		}
	}

	o, fp := outcome, finalPrice
	t := at
	e.Outcome = &o
	e.FinalPrice = &fp
	e.Payout = &payout
	e.NetReturn = &net
	e.ResolvedAt = &t
}

// Resolved reports whether the entry has already been enriched.
func (e LedgerEntry) Resolved() bool {
	return e.Outcome != nil
}

// TradeStats is the aggregate view of the ledger used by the console report.
type TradeStats struct {
	Total      int
	Open       int
	Wins       int
	Losses     int
	Failed     int
	TotalStake float64
	NetReturn  float64
}

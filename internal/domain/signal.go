package domain

import "time"

// signal.go — secuencia de gates de la señal como función pura, sin I/O ni
// logging. El wrapper con estado (fired set, skip log) vive en internal/engine.

// SkipReason identifica el gate que cortó una evaluación.
type SkipReason string

const (
	SkipAlreadyFired  SkipReason = "already_fired"
	SkipNoStrike      SkipReason = "no_strike"
	SkipOutsideWindow SkipReason = "outside_window"
	SkipLowVolatility SkipReason = "low_volatility" // σ desconocida o < mínimo
	SkipNoAsks        SkipReason = "no_asks"
	SkipWrongSide     SkipReason = "wrong_side"
	SkipLowEdge       SkipReason = "low_edge"
	SkipLowAsk        SkipReason = "low_ask"
)

// EvalInputs son las entradas de una evaluación de señal en un tick.
type EvalInputs struct {
	AlreadyFired     bool
	Strike           float64
	StrikeKnown      bool
	SecondsRemaining float64
	Spot             float64
	SpotKnown        bool
	Sigma            float64
	SigmaKnown       bool
	YesAsk           float64
	NoAsk            float64
	AsksKnown        bool
}

// EvalConfig son los umbrales de la secuencia de gates.
type EvalConfig struct {
	MinSecondsRemaining float64
	EntryWindow         float64 // segundos antes de expiración para poder entrar
	MinVolatility       float64
	MinEdge             float64
	MinAsk              float64
}

// EvalResult es el resultado de una evaluación: o bien Fired con el lado
// elegido y sus métricas, o bien Reason con el gate que falló. Nunca ambos.
type EvalResult struct {
	Fired      bool
	Reason     SkipReason
	Side       Side
	Ask        float64
	ModelProb  float64 // probabilidad modelada del lado elegido
	MarketProb float64 // ask del lado elegido (probabilidad implícita)
	Edge       float64
}

// Evaluate ejecuta la secuencia de gates en orden. El primer fallo
// termina la evaluación con el reason de ese gate.
func Evaluate(in EvalInputs, cfg EvalConfig) EvalResult {
	// Un mercado nunca dispara dos veces.
	if in.AlreadyFired {
		return EvalResult{Reason: SkipAlreadyFired}
	}

	// Sin strike no hay nada que modelar.
	if !in.StrikeKnown {
		return EvalResult{Reason: SkipNoStrike}
	}

	// Dentro de la ventana de entrada.
	if in.SecondsRemaining < cfg.MinSecondsRemaining || in.SecondsRemaining > cfg.EntryWindow {
		return EvalResult{Reason: SkipOutsideWindow}
	}

	// σ conocida y por encima del mínimo. Sin spot tampoco hay modelo.
	if !in.SigmaKnown || !in.SpotKnown || in.Sigma < cfg.MinVolatility {
		return EvalResult{Reason: SkipLowVolatility}
	}

	// Ambos asks conocidos y > 0.
	if !in.AsksKnown || in.YesAsk <= 0 || in.NoAsk <= 0 {
		return EvalResult{Reason: SkipNoAsks}
	}

	pYes := ModelProb(in.Spot, in.Strike, in.Sigma, in.SecondsRemaining)

	// Edge por lado: probabilidad modelada menos probabilidad implícita.
	edgeYes := pYes - in.YesAsk
	edgeNo := (1 - pYes) - in.NoAsk

	side, ask, prob, edge := SideYes, in.YesAsk, pYes, edgeYes
	if edgeNo > edgeYes {
		side, ask, prob, edge = SideNo, in.NoAsk, 1-pYes, edgeNo
	}

	// El lado elegido tiene que ser el favorito del modelo.
	favorite := SideNo
	if pYes > 0.5 {
		favorite = SideYes
	}
	if side != favorite {
		return EvalResult{Reason: SkipWrongSide}
	}

	// Edge suficiente.
	if edge < cfg.MinEdge {
		return EvalResult{Reason: SkipLowEdge}
	}

	// Ask mínimo: asks de céntimos son posiciones ya decididas.
	if ask < cfg.MinAsk {
		return EvalResult{Reason: SkipLowAsk}
	}

	return EvalResult{
		Fired:      true,
		Side:       side,
		Ask:        ask,
		ModelProb:  prob,
		MarketProb: ask,
		Edge:       edge,
	}
}

// Opportunity es la salida inmutable de una evaluación que pasó todos los
// gates: el mercado, el lado elegido y todos los inputs del modelo.
type Opportunity struct {
	Market     Market
	Profile    TightnessProfile
	Side       Side
	Ask        float64
	Stake      float64 // USDC
	Strike     float64
	Spot       float64
	ModelProb  float64
	MarketProb float64
	Edge       float64
	Volatility float64
	CreatedAt  time.Time
}

// SkipRecord documenta un tick que no disparó: los inputs y el gate que falló.
// Append-only por mercado; se persiste en el shadow audit al expirar.
type SkipRecord struct {
	Time             time.Time  `json:"t"`
	ConditionID      string     `json:"-"`
	Reason           SkipReason `json:"reason"`
	Spot             float64    `json:"spot"`
	Strike           float64    `json:"strike"`
	Volatility       float64    `json:"volatility"`
	ModelProb        float64    `json:"model_prob"`
	SecondsRemaining float64    `json:"remaining"`
	YesAsk           float64    `json:"yes_ask"`
	NoAsk            float64    `json:"no_ask"`
}

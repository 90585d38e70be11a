package domain

import (
	"math"
	"time"
)

// shadow.go — registro consolidado de auditoría por mercado expirado.
// Guarda todo lo necesario para recomputar offline qué habría pasado con
// otros umbrales: trails de precio y odds, métricas de la ventana de
// ejecución y cada skip de la vida del mercado.

// TrailPoint es un punto muestreado del trail de precio, en segundos antes
// de la expiración.
type TrailPoint struct {
	SecondsBefore float64 `json:"t"`
	Price         float64 `json:"price"`
	Distance      float64 `json:"dist,omitempty"` // |precio - strike|
}

// OddsTrailPoint es un punto muestreado del trail de odds.
type OddsTrailPoint struct {
	SecondsBefore float64 `json:"t"`
	Yes           float64 `json:"yes"`
	No            float64 `json:"no"`
}

// ShadowRecord es el registro de auditoría de un mercado expirado.
type ShadowRecord struct {
	ConditionID string
	Question    string
	Asset       string
	Strike      *float64
	FinalPrice  *float64
	Outcome     *Side
	WasTraded   bool

	TotalSnapshots int
	TightRatio     float64
	FinalYes       float64
	FinalNo        float64

	Volatility          *float64
	ExpectedMoveExec    *float64 // movimiento esperado para la ventana de ejecución
	PriceAtExecStart    *float64
	CrossedStrike       bool
	MinDistance         *float64
	MaxDistance         *float64
	MomentumLast3s      *float64 // $/s medio en los últimos 3 segundos
	ReversalDetected    bool
	MajorityAtExecStart *Side

	PriceTrailExec  []TrailPoint // 1 punto/segundo
	PriceTrailEntry []TrailPoint // 1 punto/5 segundos
	OddsTrailExec   []OddsTrailPoint
	OddsTrailEntry  []OddsTrailPoint
	Skips           []SkipRecord

	CreatedAt time.Time
}

// ShadowArgs son las entradas para construir un ShadowRecord.
type ShadowArgs struct {
	Market       Market
	Profile      TightnessProfile
	Outcome      *Side
	FinalPrice   *float64
	WasTraded    bool
	ExecWindow   time.Duration
	EntryWindow  time.Duration
	ExecHistory  []PriceSample // muestras crudas de la ventana de ejecución
	EntryHistory []PriceSample // muestras crudas de la ventana de entrada
	Volatility   *float64
	ExpectedMove *float64
	Skips        []SkipRecord
	Now          time.Time
}

// NewShadowRecord construye el registro de auditoría. Función pura: todo el
// análisis (cruce de strike, momentum, reversal) sale de los inputs.
func NewShadowRecord(a ShadowArgs) ShadowRecord {
	end := a.Market.EndDate
	execStart := end.Add(-a.ExecWindow)

	r := ShadowRecord{
		ConditionID:      a.Market.ConditionID,
		Question:         a.Market.Question,
		Asset:            a.Market.Asset,
		Strike:           a.Market.Strike,
		FinalPrice:       a.FinalPrice,
		Outcome:          a.Outcome,
		WasTraded:        a.WasTraded,
		TotalSnapshots:   len(a.Profile.Snapshots),
		TightRatio:       a.Profile.TightRatio,
		FinalYes:         a.Profile.CurrentYes,
		FinalNo:          a.Profile.CurrentNo,
		Volatility:       a.Volatility,
		ExpectedMoveExec: a.ExpectedMove,
		Skips:            a.Skips,
		CreatedAt:        a.Now,
	}

	if len(a.ExecHistory) > 0 {
		first := a.ExecHistory[0].Price
		r.PriceAtExecStart = &first

		if a.Market.Strike != nil {
			strike := *a.Market.Strike
			r.PriceTrailExec = samplePriceTrail(a.ExecHistory, end, time.Second, strike)
			r.CrossedStrike = crossedStrike(a.ExecHistory, strike)

			minD, maxD := distanceRange(a.ExecHistory, strike)
			r.MinDistance = &minD
			r.MaxDistance = &maxD
		} else {
			r.PriceTrailExec = samplePriceTrail(a.ExecHistory, end, time.Second, 0)
		}

		if m, ok := momentum(a.ExecHistory, end, 3*time.Second); ok {
			r.MomentumLast3s = &m
		}
	}

	if len(a.EntryHistory) > 0 {
		r.PriceTrailEntry = samplePriceTrail(a.EntryHistory, end, 5*time.Second, 0)
	}

	r.OddsTrailExec = sampleOddsTrail(a.Profile.Snapshots, end, execStart, time.Second)
	r.OddsTrailEntry = sampleOddsTrail(a.Profile.Snapshots, end, end.Add(-a.EntryWindow), 5*time.Second)

	// Reversal: ¿el lado mayoritario al abrir la ventana de ejecución
	// terminó perdiendo?
	if len(r.OddsTrailExec) > 0 {
		first := r.OddsTrailExec[0]
		majority := SideNo
		if first.Yes > first.No {
			majority = SideYes
		}
		r.MajorityAtExecStart = &majority
		if a.Outcome != nil {
			r.ReversalDetected = majority != *a.Outcome
		}
	}

	return r
}

// samplePriceTrail muestrea como máximo un punto por bucket de tamaño step.
// Con strike > 0 incluye la distancia al strike en cada punto.
func samplePriceTrail(samples []PriceSample, end time.Time, step time.Duration, strike float64) []TrailPoint {
	var out []TrailPoint
	seen := make(map[int64]bool)
	for _, s := range samples {
		bucket := s.Time.Unix() / int64(step.Seconds())
		if seen[bucket] {
			continue
		}
		seen[bucket] = true
		p := TrailPoint{
			SecondsBefore: end.Sub(s.Time).Seconds(),
			Price:         s.Price,
		}
		if strike > 0 {
			p.Distance = math.Abs(s.Price - strike)
		}
		out = append(out, p)
	}
	return out
}

func sampleOddsTrail(snapshots []OddsSnapshot, end, from time.Time, step time.Duration) []OddsTrailPoint {
	var out []OddsTrailPoint
	seen := make(map[int64]bool)
	for _, s := range snapshots {
		if s.Time.Before(from) {
			continue
		}
		bucket := s.Time.Unix() / int64(step.Seconds())
		if seen[bucket] {
			continue
		}
		seen[bucket] = true
		out = append(out, OddsTrailPoint{
			SecondsBefore: end.Sub(s.Time).Seconds(),
			Yes:           s.YesAsk,
			No:            s.NoAsk,
		})
	}
	return out
}

// crossedStrike devuelve true si el precio estuvo en ambos lados del strike.
func crossedStrike(samples []PriceSample, strike float64) bool {
	var above, below bool
	for _, s := range samples {
		if s.Price > strike {
			above = true
		} else if s.Price < strike {
			below = true
		}
		if above && below {
			return true
		}
	}
	return false
}

func distanceRange(samples []PriceSample, strike float64) (minD, maxD float64) {
	minD = math.Inf(1)
	for _, s := range samples {
		d := math.Abs(s.Price - strike)
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	return minD, maxD
}

// momentum devuelve el $/s medio en los últimos `window` antes de end.
func momentum(samples []PriceSample, end time.Time, window time.Duration) (float64, bool) {
	cutoff := end.Add(-window)
	var last []PriceSample
	for _, s := range samples {
		if !s.Time.Before(cutoff) {
			last = append(last, s)
		}
	}
	if len(last) < 2 {
		return 0, false
	}
	dt := last[len(last)-1].Time.Sub(last[0].Time).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return (last[len(last)-1].Price - last[0].Price) / dt, true
}

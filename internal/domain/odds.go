package domain

import (
	"math"
	"time"
)

// OddsSnapshot es una observación de los mejores asks YES/NO de un mercado.
// Solo se registra cuando ambos lados tienen valor conocido.
type OddsSnapshot struct {
	Time   time.Time
	YesAsk float64
	NoAsk  float64
}

// Spread devuelve la distancia del ask YES al 50/50.
func (s OddsSnapshot) Spread() float64 {
	return math.Abs(s.YesAsk - 0.5)
}

// TightnessProfile es el agregado de solo-lectura de la historia de odds de
// un mercado. Siempre se construye sobre una copia de los snapshots — nunca
// es estado mutable compartido con el writer del feed.
type TightnessProfile struct {
	Market           Market
	Snapshots        []OddsSnapshot
	TightRatio       float64 // fracción de snapshots con spread <= threshold
	AvgSpread        float64
	CurrentYes       float64
	CurrentNo        float64
	SecondsRemaining float64
}

// BuildProfile calcula el perfil de tightness a partir de los snapshots dados.
// Con historia vacía devuelve el perfil neutro (asks 0.5, avg_spread 1.0).
func BuildProfile(m Market, snapshots []OddsSnapshot, threshold float64, now time.Time) TightnessProfile {
	p := TightnessProfile{
		Market:           m,
		Snapshots:        snapshots,
		AvgSpread:        1.0,
		CurrentYes:       0.5,
		CurrentNo:        0.5,
		SecondsRemaining: m.SecondsRemaining(now),
	}
	if len(snapshots) == 0 {
		return p
	}

	tight := 0
	sum := 0.0
	for _, s := range snapshots {
		sp := s.Spread()
		sum += sp
		if sp <= threshold {
			tight++
		}
	}

	last := snapshots[len(snapshots)-1]
	p.TightRatio = float64(tight) / float64(len(snapshots))
	p.AvgSpread = sum / float64(len(snapshots))
	p.CurrentYes = last.YesAsk
	p.CurrentNo = last.NoAsk
	return p
}

// OddsInWindow devuelve los snapshots con timestamp en [from, to].
func OddsInWindow(snapshots []OddsSnapshot, from, to time.Time) []OddsSnapshot {
	var out []OddsSnapshot
	for _, s := range snapshots {
		if !s.Time.Before(from) && !s.Time.After(to) {
			out = append(out, s)
		}
	}
	return out
}

package domain

import "math"

// prob.go — modelo de probabilidad cerrado para mercados binarios de expiración
// corta. La pregunta del mercado es "¿precio final > strike?", así que la
// probabilidad del lado YES es P(S_T > K) bajo difusión sin drift:
//
//	d2 = ln(S/K) / (σ·√T)
//	P(YES) = Φ(d2)
//
// con σ en unidades de retorno-por-√segundo y T en segundos restantes.

const cdfSaturation = 8.0

// Coeficientes de Abramowitz & Stegun 26.2.17 (|error| < 7.5e-8).
const (
	asP  = 0.2316419
	asB1 = 0.319381530
	asB2 = -0.356563782
	asB3 = 1.781477937
	asB4 = -1.821255978
	asB5 = 1.330274429
)

// NormalCDF evalúa Φ, la CDF de la normal estándar, con la aproximación
// racional de Abramowitz & Stegun. Satura a 0/1 fuera de |x| > 8.
func NormalCDF(x float64) float64 {
	if x >= cdfSaturation {
		return 1.0
	}
	if x <= -cdfSaturation {
		return 0.0
	}
	if x < 0 {
		return 1.0 - NormalCDF(-x)
	}

	t := 1.0 / (1.0 + asP*x)
	poly := t * (asB1 + t*(asB2+t*(asB3+t*(asB4+t*asB5))))
	pdf := math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
	return 1.0 - pdf*poly
}

// ModelProb devuelve la probabilidad modelada del lado YES.
// Inputs degenerados (S, K, σ o T <= 0) devuelven 0.5: "sin información",
// explícitamente distinto de un error.
func ModelProb(spot, strike, sigma, secondsRemaining float64) float64 {
	if spot <= 0 || strike <= 0 || sigma <= 0 || secondsRemaining <= 0 {
		return 0.5
	}
	d2 := math.Log(spot/strike) / (sigma * math.Sqrt(secondsRemaining))
	return NormalCDF(d2)
}

// ExpectedMove devuelve el movimiento esperado en dólares:
// σ · precio · √(max(0, segundos restantes)).
func ExpectedMove(sigma, price, secondsRemaining float64) float64 {
	if secondsRemaining < 0 {
		secondsRemaining = 0
	}
	return sigma * price * math.Sqrt(secondsRemaining)
}

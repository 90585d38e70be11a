package ports

import (
	"time"

	"github.com/amezcua/tightbot/internal/domain"
)

// PriceAnalytics es la vista de lectura del price feed que consumen el
// signal engine y el coordinator. El segundo valor de retorno distingue
// "no disponible" de un cero real.
type PriceAnalytics interface {
	// Latest devuelve el último precio spot del activo.
	Latest(asset string) (float64, bool)

	// PriceAt devuelve la muestra más cercana a t por diferencia absoluta.
	// Si la más cercana está a más de 60s, cae a Latest.
	PriceAt(asset string, t time.Time) (float64, bool)

	// Volatility devuelve la desviación estándar de los log-returns de 1s
	// dentro de la ventana. Requiere >=10 muestras y >=5 returns.
	Volatility(asset string, window time.Duration) (float64, bool)

	// ExpectedMove devuelve σ · precio · √(segundos restantes).
	ExpectedMove(asset string, secondsRemaining float64, window time.Duration) (float64, bool)

	// HasCrossed devuelve true si desde `since` hubo muestras estrictamente
	// por encima y por debajo del strike.
	HasCrossed(asset string, strike float64, since time.Time) bool

	// History devuelve las muestras crudas en [from, to].
	History(asset string, from, to time.Time) []domain.PriceSample
}

// OddsTracker mantiene los mejores asks YES/NO por mercado trackeado y es el
// registro de mercados vivos de la estrategia.
type OddsTracker interface {
	Add(m domain.Market)
	Remove(conditionID string)

	// SetStrike fija el strike del mercado una única vez.
	// Devuelve false si el mercado no existe o ya tenía strike.
	SetStrike(conditionID string, price float64) bool

	// Profile calcula el perfil de tightness sobre una copia de la historia.
	Profile(conditionID string) (domain.TightnessProfile, bool)
	AllProfiles() []domain.TightnessProfile

	// TrackedMarkets devuelve copias de los mercados trackeados.
	TrackedMarkets() []domain.Market
}

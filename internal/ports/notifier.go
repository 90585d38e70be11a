package ports

import (
	"context"

	"github.com/amezcua/tightbot/internal/domain"
)

// Notifier presenta el estado de la estrategia al usuario.
type Notifier interface {
	// Status muestra los mercados trackeados con sus odds y tiempo restante.
	Status(ctx context.Context, profiles []domain.TightnessProfile) error

	// TradeReport muestra el resumen agregado del ledger.
	TradeReport(ctx context.Context, stats domain.TradeStats) error
}

package ports

import (
	"context"

	"github.com/amezcua/tightbot/internal/domain"
)

// Storage persiste el ledger de trades y el shadow audit.
type Storage interface {
	// SaveTrade inserta una entrada del ledger (campos de resolución vacíos).
	SaveTrade(ctx context.Context, entry domain.LedgerEntry) error

	// ResolveTrades enriquece las entradas sin resolver del mercado dado y
	// devuelve las que resolvió en esta llamada. Idempotente: las ya
	// resueltas no se tocan y no se devuelven.
	ResolveTrades(ctx context.Context, conditionID string, outcome domain.Side, finalPrice float64) ([]domain.LedgerEntry, error)

	// SaveShadow persiste el registro de auditoría de un mercado expirado.
	SaveShadow(ctx context.Context, record domain.ShadowRecord) error

	// TradeStats devuelve el agregado del ledger para el report de consola.
	TradeStats(ctx context.Context) (domain.TradeStats, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

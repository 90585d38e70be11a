package ports

import (
	"context"

	"github.com/amezcua/tightbot/internal/domain"
)

// MarketSource descubre mercados cripto de ventana corta próximos a resolver.
type MarketSource interface {
	// FindUpcomingMarkets devuelve los mercados binarios de ventana de 15
	// minutos que expiran pronto. Pagina automáticamente.
	FindUpcomingMarkets(ctx context.Context) ([]domain.Market, error)
}

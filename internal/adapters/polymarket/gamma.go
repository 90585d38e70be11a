package polymarket

// gamma.go — descubrimiento de mercados cripto de ventana corta vía Gamma.
// Pagina GET /markets y filtra por pregunta (activo + ventana de 15 min) y
// por proximidad de expiración.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
	"github.com/amezcua/tightbot/internal/ports"
)

const (
	gammaMarketsPath = "/markets"
	gammaPageSize    = 100
	gammaMaxPages    = 50 // tope de seguridad por ciclo de descubrimiento
)

// MarketFinder descubre mercados cripto próximos a expirar en Gamma.
// Implementa ports.MarketSource.
type MarketFinder struct {
	client *Client
	assets map[string]bool
	now    func() time.Time
}

// allowedSet normaliza la lista de activos permitidos.
func allowedSet(assets []string) map[string]bool {
	out := make(map[string]bool, len(assets))
	for _, a := range assets {
		out[strings.ToUpper(strings.TrimSpace(a))] = true
	}
	return out
}

// NewMarketFinder crea el finder. assets es la lista de símbolos permitidos
// (BTC, ETH, SOL, XRP); vacía significa todos.
func NewMarketFinder(client *Client, assets []string) *MarketFinder {
	return &MarketFinder{
		client: client,
		assets: allowedSet(assets),
		now:    time.Now,
	}
}

var _ ports.MarketSource = (*MarketFinder)(nil)

// FindUpcomingMarkets pagina Gamma y devuelve los mercados que pasan el
// filtro de mapGammaMarket. Una página que falla corta la paginación pero no
// descarta lo ya acumulado.
func (f *MarketFinder) FindUpcomingMarkets(ctx context.Context) ([]domain.Market, error) {
	now := f.now().UTC()
	var markets []domain.Market

	for page := 0; page < gammaMaxPages; page++ {
		offset := page * gammaPageSize
		url := fmt.Sprintf("%s%s?limit=%d&offset=%d&active=true&closed=false",
			f.client.gammaBase, gammaMarketsPath, gammaPageSize, offset)

		var resp gammaMarketsResponse
		if err := f.client.get(ctx, f.client.gammaLimiter, url, &resp); err != nil {
			if len(markets) > 0 {
				f.client.log.Warn("gamma page failed, returning partial results",
					"page", page, "err", err)
				break
			}
			return nil, fmt.Errorf("gamma.FindUpcomingMarkets: %w", err)
		}
		if len(resp) == 0 {
			break
		}

		for _, gm := range resp {
			m, ok := mapGammaMarket(gm, now)
			if !ok {
				continue
			}
			if len(f.assets) > 0 && !f.assets[m.Asset] {
				continue
			}
			markets = append(markets, m)
		}

		if len(resp) < gammaPageSize {
			break
		}
	}

	f.client.log.Info("upcoming crypto markets found", "count", len(markets))
	return markets, nil
}

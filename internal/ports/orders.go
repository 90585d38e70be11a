package ports

import "context"

// AskProvider consulta el mejor ask actual de un token vía REST.
type AskProvider interface {
	// BestAsk devuelve el mejor (menor) ask del token, o (0, nil) si el
	// libro no tiene asks.
	BestAsk(ctx context.Context, tokenID string) (float64, error)
}

// OrderPlacer places real orders on the venue. The EIP-712 order signing
// stack lives behind this boundary, inside the venue client.
type OrderPlacer interface {
	// PlaceMarketOrder submits a FOK buy for amountUSDC of the given token
	// and returns the venue order ID.
	PlaceMarketOrder(ctx context.Context, tokenID string, amountUSDC float64) (string, error)
}

package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket es la metadata raw de un mercado de Gamma. Algunos campos
// numéricos llegan como strings JSON, usamos json.Number.
type gammaMarket struct {
	ID           string      `json:"id"`
	ConditionID  string      `json:"conditionId"`
	Question     string      `json:"question"`
	EndDate      string      `json:"endDate"`
	EndDateISO   string      `json:"endDateIso"`
	ClobTokenIDs string      `json:"clobTokenIds"` // array JSON codificado como string
	Volume       json.Number `json:"volume"`
	Liquidity    json.Number `json:"liquidity"`
	Active       bool        `json:"active"`
	Closed       bool        `json:"closed"`
}

// --- CLOB API ---

// bookResponse es la respuesta de GET /book para un token.
type bookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// orderRequest es el body del POST /order para una orden de mercado FOK
// (amount en USDC, side BUY).
type orderRequest struct {
	TokenID   string  `json:"token_id"`
	Amount    float64 `json:"amount"`
	Side      string  `json:"side"`
	OrderType string  `json:"order_type"`
	Owner     string  `json:"owner"`
}

// orderResponse es la respuesta del POST /order.
type orderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	ErrMsg  string `json:"errorMsg"`
	Status  string `json:"status"`
}

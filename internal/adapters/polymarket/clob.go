package polymarket

// clob.go — CLOB REST adapter: best-ask lookups and market order placement.
// Order placement uses L2 (HMAC) auth; the request is rejected locally when
// no credentials are configured so a misconfigured live run fails loudly
// instead of leaking unsigned requests.

import (
	"context"
	"fmt"
	"net/url"

	"github.com/amezcua/tightbot/internal/ports"
)

const (
	bookPath  = "/book"
	orderPath = "/order"

	orderSideBuy = "BUY"
	orderTypeFOK = "FOK"
)

// CLOB adapts the Polymarket CLOB REST API to the ask/order ports.
type CLOB struct {
	client *Client
}

// NewCLOB wraps the shared client.
func NewCLOB(client *Client) *CLOB {
	return &CLOB{client: client}
}

var (
	_ ports.AskProvider = (*CLOB)(nil)
	_ ports.OrderPlacer = (*CLOB)(nil)
)

// BestAsk returns the lowest ask for the given token.
func (c *CLOB) BestAsk(ctx context.Context, tokenID string) (float64, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.client.clobBase, bookPath, url.QueryEscape(tokenID))

	var book bookResponse
	if err := c.client.get(ctx, c.client.bookLimiter, u, &book); err != nil {
		return 0, fmt.Errorf("clob.BestAsk: %w", err)
	}

	ask, ok := bestAsk(book)
	if !ok {
		return 0, fmt.Errorf("clob.BestAsk: no asks for token %s", tokenID)
	}
	return ask, nil
}

// PlaceMarketOrder posts a fill-or-kill BUY market order for amountUSDC and
// returns the order ID.
func (c *CLOB) PlaceMarketOrder(ctx context.Context, tokenID string, amountUSDC float64) (string, error) {
	if c.client.creds.Empty() {
		return "", fmt.Errorf("clob.PlaceMarketOrder: no API credentials configured")
	}
	if amountUSDC <= 0 {
		return "", fmt.Errorf("clob.PlaceMarketOrder: invalid amount %.2f", amountUSDC)
	}

	req := orderRequest{
		TokenID:   tokenID,
		Amount:    amountUSDC,
		Side:      orderSideBuy,
		OrderType: orderTypeFOK,
		Owner:     c.client.creds.APIKey,
	}

	var resp orderResponse
	if err := c.client.postSigned(ctx, c.client.orderLimiter, orderPath, req, &resp); err != nil {
		return "", fmt.Errorf("clob.PlaceMarketOrder: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("clob.PlaceMarketOrder: rejected: %s", resp.ErrMsg)
	}

	c.client.log.Info("order placed",
		"order_id", resp.OrderID,
		"amount_usdc", amountUSDC,
		"status", resp.Status,
	)
	return resp.OrderID, nil
}

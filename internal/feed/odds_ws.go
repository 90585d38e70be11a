package feed

// odds_ws.go — CLOB market-channel WebSocket plumbing for the odds tracker.
//
// The channel has no incremental subscribe: changing the token set means
// closing the connection and resubscribing with the full set, in batches.
// Add/Remove force that through requestResubscribe.

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const defaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

type bookSubscribeRequest struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel"`
	AssetIDs []string `json:"assets_ids"`
}

// bookMessage is one order book update. The asks come as [price, size]
// string pairs or as {price, size} objects depending on the message kind;
// bookLevel handles both.
type bookMessage struct {
	AssetID string      `json:"asset_id"`
	Asks    []bookLevel `json:"asks"`
}

type bookLevel struct {
	Price float64
}

func (l *bookLevel) UnmarshalJSON(b []byte) error {
	var obj struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && obj.Price != "" {
		p, err := strconv.ParseFloat(obj.Price, 64)
		if err != nil {
			return err
		}
		l.Price = p
		return nil
	}

	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) == 0 {
		return nil
	}
	p, err := strconv.ParseFloat(pair[0], 64)
	if err != nil {
		return err
	}
	l.Price = p
	return nil
}

// Run maintains the shared book subscription until the context is cancelled.
// With no tracked tokens it idles; otherwise it reconnects after a fixed
// short delay, forever.
func (t *OddsTracker) Run(ctx context.Context) {
	t.log.Info("odds tracker starting", "url", t.cfg.WSURL)

	for ctx.Err() == nil {
		tokens := t.tokenIDs()
		if len(tokens) == 0 {
			select {
			case <-ctx.Done():
			case <-t.resub:
			case <-time.After(time.Second):
			}
			continue
		}

		if err := t.runSession(ctx, tokens); err != nil && ctx.Err() == nil {
			t.log.Debug("odds stream disconnected", "err", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(t.cfg.ReconnectDelay):
		}
	}
	t.log.Info("odds tracker stopped")
}

func (t *OddsTracker) runSession(ctx context.Context, tokens []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	defer func() {
		t.connMu.Lock()
		t.conn = nil
		t.connMu.Unlock()
	}()

	for i := 0; i < len(tokens); i += t.cfg.SubscribeBatchSize {
		end := i + t.cfg.SubscribeBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		req := bookSubscribeRequest{Type: "subscribe", Channel: "book", AssetIDs: tokens[i:end]}
		if err := conn.WriteJSON(req); err != nil {
			return err
		}
	}
	t.log.Info("odds stream subscribed", "tokens", len(tokens))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		t.handleRaw(raw)
	}
}

// handleRaw decodes a message that may be a single update or an array.
func (t *OddsTracker) handleRaw(raw []byte) {
	if len(raw) == 0 {
		return
	}

	if raw[0] == '[' {
		var batch []bookMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return
		}
		for _, msg := range batch {
			t.handleBook(msg)
		}
		return
	}

	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	t.handleBook(msg)
}

func (t *OddsTracker) handleBook(msg bookMessage) {
	if msg.AssetID == "" || len(msg.Asks) == 0 {
		return
	}
	best := 0.0
	for _, lvl := range msg.Asks {
		if lvl.Price <= 0 {
			continue
		}
		if best == 0 || lvl.Price < best {
			best = lvl.Price
		}
	}
	if best > 0 {
		t.handleBookUpdate(msg.AssetID, best)
	}
}

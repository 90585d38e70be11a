package feed

// price_ws.go — RTDS WebSocket plumbing for the price feed.
//
// The RTDS stream serves the same Chainlink series the venue uses for market
// resolution, which removes any price-source mismatch at expiry. One quirk:
// it sends a batch of recent points on each subscribe instead of streaming
// continuously, so a resubscribe loop keeps the feed fresh. Duplicate points
// across batches are dropped by Record's timestamp dedupe.

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultRTDSURL = "wss://ws-live-data.polymarket.com"

	rtdsSubscribeTopic = "crypto_prices_chainlink"
	rtdsResponseTopic  = "crypto_prices"

	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 10 * time.Second
)

type rtdsSubscription struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"` // JSON string, not an object
}

type rtdsSubscribeRequest struct {
	Action        string             `json:"action"`
	Subscriptions []rtdsSubscription `json:"subscriptions"`
}

type rtdsMessage struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type rtdsPricePayload struct {
	Symbol string `json:"symbol"`
	Data   []struct {
		Timestamp int64   `json:"timestamp"` // ms
		Value     float64 `json:"value"`
	} `json:"data"`
}

// Run connects to the RTDS stream and keeps the feed updated until the
// context is cancelled. Reconnects after a fixed short delay, forever.
func (f *PriceFeed) Run(ctx context.Context) {
	f.log.Info("price feed starting", "url", f.cfg.WSURL, "assets", f.cfg.Assets)

	symbolToAsset := make(map[string]string, len(f.cfg.Assets))
	for _, a := range f.cfg.Assets {
		symbolToAsset[strings.ToLower(a)+"/usd"] = a
	}

	for ctx.Err() == nil {
		if err := f.runSession(ctx, symbolToAsset); err != nil && ctx.Err() == nil {
			f.log.Warn("price feed disconnected", "err", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
	f.log.Info("price feed stopped")
}

func (f *PriceFeed) runSession(ctx context.Context, symbolToAsset map[string]string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// gorilla allows a single concurrent writer; the resubscribe and ping
	// tickers share the connection with this mutex.
	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}
	ping := func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsPongTimeout))
	}

	subscribe := func() error {
		for symbol := range symbolToAsset {
			filters, _ := json.Marshal(map[string]string{"symbol": symbol})
			req := rtdsSubscribeRequest{
				Action: "subscribe",
				Subscriptions: []rtdsSubscription{{
					Topic:   rtdsSubscribeTopic,
					Type:    "*",
					Filters: string(filters),
				}},
			}
			if err := write(req); err != nil {
				return err
			}
		}
		return nil
	}

	if err := subscribe(); err != nil {
		return err
	}
	f.log.Info("price feed connected")

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		resub := time.NewTicker(f.cfg.ResubscribeInterval)
		keepalive := time.NewTicker(wsPingInterval)
		defer resub.Stop()
		defer keepalive.Stop()
		for {
			select {
			case <-sessionCtx.Done():
				return
			case <-resub.C:
				if err := subscribe(); err != nil {
					conn.Close()
					return
				}
			case <-keepalive.C:
				if err := ping(); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	// Reader loop. A cancelled context closes the connection to unblock it.
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(raw, symbolToAsset)
		f.maybeLogSummary()
	}
}

func (f *PriceFeed) handleMessage(raw []byte, symbolToAsset map[string]string) {
	if len(raw) == 0 {
		return
	}

	var msg rtdsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	// The response topic differs from the subscribe topic.
	if msg.Topic != rtdsResponseTopic {
		return
	}

	var payload rtdsPricePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}
	asset, ok := symbolToAsset[payload.Symbol]
	if !ok {
		return
	}

	for _, point := range payload.Data {
		f.Record(asset, time.UnixMilli(point.Timestamp), point.Value)
	}
}

package pushhub

import (
	"encoding/json"
	"log"

	"marketdata-backend/internal/provider"
	"marketdata-backend/internal/wire"
)

// pushEnvelope wraps a wire DTO with the routing metadata a client needs to
// tell which topic an unsolicited push belongs to.
type pushEnvelope struct {
	Type     string      `json:"type"`
	Provider string      `json:"provider"`
	Symbol   string      `json:"symbol"`
	Data     interface{} `json:"data"`
}

// Dispatch serializes a normalized provider event into the matching wire DTO
// and broadcasts it to every client subscribed to (symbol, streamType). Pass
// this as the hub.PushFunc via hub.Hub.SetPush(pushHub.Dispatch).
func (h *Hub) Dispatch(ev provider.Event) {
	var data interface{}
	switch ev.Type {
	case provider.StreamKline:
		if ev.Candle == nil {
			return
		}
		data = wire.NewCandleDTO(*ev.Candle)
	case provider.StreamTrade, provider.StreamAggregateTrade:
		if ev.Trade == nil {
			return
		}
		data = wire.NewTradeDTO(*ev.Trade)
	case provider.StreamOrderBook:
		if ev.OrderBook == nil {
			return
		}
		data = wire.NewOrderBookDTO(*ev.OrderBook)
	case provider.StreamBookTicker:
		if ev.BookTicker == nil {
			return
		}
		data = wire.NewBookTickerDTO(*ev.BookTicker)
	default:
		return
	}

	payload, err := json.Marshal(pushEnvelope{
		Type: string(ev.Type), Provider: ev.Provider, Symbol: ev.Symbol, Data: data,
	})
	if err != nil {
		log.Printf("[pushhub] marshal error for %s/%s: %v", ev.Provider, ev.Symbol, err)
		return
	}
	h.Broadcast(ev.Symbol, ev.Type, payload)
}

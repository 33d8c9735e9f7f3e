// Package wire holds the JSON-wire DTOs shared by the REST surface
// (internal/restapi) and the WebSocket push surface (internal/pushhub), so a
// kline pushed over the socket is byte-shaped identically to one read back
// from the historical REST endpoint.
package wire

import (
	"time"

	"marketdata-backend/internal/marketdata"
)

// CandleDTO is the bit-exact historical-candle/push-kline wire shape.
// Numeric fields are float64 so they marshal as JSON numbers, never strings.
type CandleDTO struct {
	Symbol           string  `json:"symbol"`
	Provider         string  `json:"provider"`
	Interval         string  `json:"interval"`
	Closed           bool    `json:"closed"`
	OpenTime         string  `json:"openTime"`
	CloseTime        string  `json:"closeTime"`
	Time             int64   `json:"time"`
	Timestamp        int64   `json:"timestamp"`
	TimeMs           int64   `json:"timeMs"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Close            float64 `json:"close"`
	Volume           float64 `json:"volume"`
	QuoteAssetVolume float64 `json:"quoteAssetVolume"`
	NumberOfTrades   int64   `json:"numberOfTrades"`
}

// NewCandleDTO converts a store Candle into its wire shape.
func NewCandleDTO(c marketdata.Candle) CandleDTO {
	return CandleDTO{
		Symbol:           c.Symbol,
		Provider:         c.Provider,
		Interval:         c.Interval,
		Closed:           c.Closed,
		OpenTime:         c.OpenTime.UTC().Format(time.RFC3339),
		CloseTime:        c.CloseTime.UTC().Format(time.RFC3339),
		Time:             c.OpenTime.Unix(),
		Timestamp:        c.OpenTime.Unix(),
		TimeMs:           c.OpenTime.UnixMilli(),
		Open:             c.Open.InexactFloat64(),
		High:             c.High.InexactFloat64(),
		Low:              c.Low.InexactFloat64(),
		Close:            c.Close.InexactFloat64(),
		Volume:           c.Volume.InexactFloat64(),
		QuoteAssetVolume: c.QuoteAssetVolume.InexactFloat64(),
		NumberOfTrades:   c.TradeCount,
	}
}

// NewCandleDTOs converts a slice, preserving order.
func NewCandleDTOs(cs []marketdata.Candle) []CandleDTO {
	out := make([]CandleDTO, len(cs))
	for i, c := range cs {
		out[i] = NewCandleDTO(c)
	}
	return out
}

// TradeDTO is the store-snapshot wire shape for a single trade.
type TradeDTO struct {
	Symbol        string  `json:"symbol"`
	Provider      string  `json:"provider"`
	Timestamp     int64   `json:"timestamp"`
	TimeMs        int64   `json:"timeMs"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	AggressiveBuy bool    `json:"aggressiveBuy"`
	TradeID       string  `json:"tradeId,omitempty"`
}

func NewTradeDTO(t marketdata.Trade) TradeDTO {
	return TradeDTO{
		Symbol:        t.Symbol,
		Provider:      t.Provider,
		Timestamp:     t.Timestamp.Unix(),
		TimeMs:        t.Timestamp.UnixMilli(),
		Price:         t.Price.InexactFloat64(),
		Quantity:      t.Quantity.InexactFloat64(),
		AggressiveBuy: t.AggressiveBuy,
		TradeID:       t.TradeID,
	}
}

func NewTradeDTOs(ts []marketdata.Trade) []TradeDTO {
	out := make([]TradeDTO, len(ts))
	for i, t := range ts {
		out[i] = NewTradeDTO(t)
	}
	return out
}

// PriceLevelDTO is one side of book depth.
type PriceLevelDTO struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

func newPriceLevelDTOs(levels []marketdata.PriceLevel) []PriceLevelDTO {
	out := make([]PriceLevelDTO, len(levels))
	for i, l := range levels {
		out[i] = PriceLevelDTO{Price: l.Price.InexactFloat64(), Quantity: l.Quantity.InexactFloat64()}
	}
	return out
}

// OrderBookDTO is the store-snapshot wire shape for a full-depth book sample.
type OrderBookDTO struct {
	Symbol    string          `json:"symbol"`
	Provider  string          `json:"provider"`
	Timestamp int64           `json:"timestamp"`
	TimeMs    int64           `json:"timeMs"`
	Bids      []PriceLevelDTO `json:"bids"`
	Asks      []PriceLevelDTO `json:"asks"`
}

func NewOrderBookDTO(ob marketdata.OrderBookSnapshot) OrderBookDTO {
	return OrderBookDTO{
		Symbol:    ob.Symbol,
		Provider:  ob.Provider,
		Timestamp: ob.Timestamp.Unix(),
		TimeMs:    ob.Timestamp.UnixMilli(),
		Bids:      newPriceLevelDTOs(ob.Bids),
		Asks:      newPriceLevelDTOs(ob.Asks),
	}
}

func NewOrderBookDTOs(obs []marketdata.OrderBookSnapshot) []OrderBookDTO {
	out := make([]OrderBookDTO, len(obs))
	for i, ob := range obs {
		out[i] = NewOrderBookDTO(ob)
	}
	return out
}

// BookTickerDTO is the store-snapshot wire shape for a best-bid/best-ask
// sample, including the store's derived spread/imbalance analytics.
type BookTickerDTO struct {
	Symbol    string        `json:"symbol"`
	Provider  string        `json:"provider"`
	Timestamp int64         `json:"timestamp"`
	TimeMs    int64         `json:"timeMs"`
	BestBid   PriceLevelDTO `json:"bestBid"`
	BestAsk   PriceLevelDTO `json:"bestAsk"`
	Spread    float64       `json:"spread"`
	SpreadBps float64       `json:"spreadBps"`
	Imbalance float64       `json:"imbalance"`
}

func NewBookTickerDTO(bt marketdata.BookTickerSnapshot) BookTickerDTO {
	return BookTickerDTO{
		Symbol:    bt.Symbol,
		Provider:  bt.Provider,
		Timestamp: bt.Timestamp.Unix(),
		TimeMs:    bt.Timestamp.UnixMilli(),
		BestBid:   PriceLevelDTO{Price: bt.BestBid.Price.InexactFloat64(), Quantity: bt.BestBid.Quantity.InexactFloat64()},
		BestAsk:   PriceLevelDTO{Price: bt.BestAsk.Price.InexactFloat64(), Quantity: bt.BestAsk.Quantity.InexactFloat64()},
		Spread:    bt.Spread.InexactFloat64(),
		SpreadBps: bt.SpreadBps.InexactFloat64(),
		Imbalance: bt.Imbalance.InexactFloat64(),
	}
}

func NewBookTickerDTOs(bts []marketdata.BookTickerSnapshot) []BookTickerDTO {
	out := make([]BookTickerDTO, len(bts))
	for i, bt := range bts {
		out[i] = NewBookTickerDTO(bt)
	}
	return out
}

// PriceLevelVolumeDTO is one tick-aligned level of a footprint's volume profile.
type PriceLevelVolumeDTO struct {
	Price      float64 `json:"price"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
	TradeCount int64   `json:"tradeCount"`
	Delta      float64 `json:"delta"`
	BuyRatio   float64 `json:"buyRatio"`
}

// FootprintDTO is the wire shape for a footprint candle, embedding its
// candle fields plus the per-level volume profile and derived analytics.
type FootprintDTO struct {
	CandleDTO
	TotalBuyVolume  float64               `json:"totalBuyVolume"`
	TotalSellVolume float64               `json:"totalSellVolume"`
	Delta           float64               `json:"delta"`
	CumulativeDelta float64               `json:"cumulativeDelta"`
	PointOfControl  float64               `json:"pointOfControl"`
	ValueAreaHigh   float64               `json:"valueAreaHigh"`
	ValueAreaLow    float64               `json:"valueAreaLow"`
	VolumeProfile   []PriceLevelVolumeDTO `json:"volumeProfile"`
}

func NewFootprintDTO(fc marketdata.FootprintCandle) FootprintDTO {
	profile := make([]PriceLevelVolumeDTO, 0, len(fc.VolumeProfile))
	for _, lvl := range fc.VolumeProfile {
		profile = append(profile, PriceLevelVolumeDTO{
			Price:      lvl.Price.InexactFloat64(),
			BuyVolume:  lvl.BuyVolume.InexactFloat64(),
			SellVolume: lvl.SellVolume.InexactFloat64(),
			TradeCount: lvl.TradeCount,
			Delta:      lvl.Delta().InexactFloat64(),
			BuyRatio:   lvl.BuyRatio().InexactFloat64(),
		})
	}
	return FootprintDTO{
		CandleDTO:       NewCandleDTO(fc.Candle),
		TotalBuyVolume:  fc.TotalBuyVolume.InexactFloat64(),
		TotalSellVolume: fc.TotalSellVolume.InexactFloat64(),
		Delta:           fc.Delta.InexactFloat64(),
		CumulativeDelta: fc.CumulativeDelta.InexactFloat64(),
		PointOfControl:  fc.PointOfControl.InexactFloat64(),
		ValueAreaHigh:   fc.ValueAreaHigh.InexactFloat64(),
		ValueAreaLow:    fc.ValueAreaLow.InexactFloat64(),
		VolumeProfile:   profile,
	}
}

func NewFootprintDTOs(fcs []marketdata.FootprintCandle) []FootprintDTO {
	out := make([]FootprintDTO, len(fcs))
	for i, fc := range fcs {
		out[i] = NewFootprintDTO(fc)
	}
	return out
}

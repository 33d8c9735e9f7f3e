// Package exchange implements Provider against a real Binance-compatible
// combined WebSocket stream plus REST historical endpoints, generalizing the
// teacher's internal/binance client and internal/websocket Binance stream
// into the full market-data Provider contract.
package exchange

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketdata-backend/internal/apierr"
	"marketdata-backend/internal/marketdata"
	"marketdata-backend/internal/timeutil"
)

// newHTTPClient returns a pooled client tuned for bounded idle connections,
// per-host caps, and compression.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
		},
	}
}

type klineResponse [][]interface{}

func (c *Client) getHistoricalKlinesREST(ctx context.Context, symbol string, interval timeutil.Interval, limit int) ([]marketdata.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	reqURL := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrTransportFailure, err)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", apierr.ErrTransportFailure, resp.StatusCode, string(body))
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apierr.ErrTransportFailure, err)
		}
		defer gz.Close()
		reader = gz
	}

	var raw klineResponse
	if err := json.NewDecoder(reader).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrTransportFailure, err)
	}

	candles := make([]marketdata.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := convertKlineRow(row, c.providerName, symbol, string(interval))
		if err != nil {
			continue // per-row failure skipped, not fatal to the batch
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func convertKlineRow(row []interface{}, provider, symbol, interval string) (marketdata.Candle, error) {
	if len(row) < 9 {
		return marketdata.Candle{}, fmt.Errorf("invalid kline row length %d", len(row))
	}
	openMs, err := toInt64(row[0])
	if err != nil {
		return marketdata.Candle{}, err
	}
	closeMs, err := toInt64(row[6])
	if err != nil {
		return marketdata.Candle{}, err
	}
	tradeCount, err := toInt64(row[8])
	if err != nil {
		return marketdata.Candle{}, err
	}

	open, _ := decimal.NewFromString(toString(row[1]))
	high, _ := decimal.NewFromString(toString(row[2]))
	low, _ := decimal.NewFromString(toString(row[3]))
	closeP, _ := decimal.NewFromString(toString(row[4]))
	volume, _ := decimal.NewFromString(toString(row[5]))
	quoteVolume, _ := decimal.NewFromString(toString(row[7]))

	return marketdata.Candle{
		Symbol: symbol, Provider: provider, Interval: interval,
		OpenTime: time.UnixMilli(openMs).UTC(), CloseTime: time.UnixMilli(closeMs).UTC(),
		Open: open, High: high, Low: low, Close: closeP,
		Volume: volume, QuoteAssetVolume: quoteVolume,
		TradeCount: tradeCount, Closed: true,
	}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case float64:
		return int64(val), nil
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func combinedStreamURL(baseWSURL string, symbols []string, suffixes []string) string {
	streams := make([]string, 0, len(symbols)*len(suffixes))
	for _, sym := range symbols {
		for _, suffix := range suffixes {
			streams = append(streams, strings.ToLower(sym)+suffix)
		}
	}
	return baseWSURL + "/stream?streams=" + strings.Join(streams, "/")
}

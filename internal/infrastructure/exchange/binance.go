package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_trade_bot/internal/domain"
)

const (
	BinanceBaseURL = "https://api.binance.com"
	BinanceWSURL   = "wss://stream.binance.com:9443/ws"
)

// cachedPrice is one miniTicker observation. Entries older than
// priceStaleAfter fall back to REST.
type cachedPrice struct {
	price     float64
	updatedAt time.Time
}

const priceStaleAfter = 30 * time.Second

// symbolFilter holds the lot and tick rounding rules from exchangeInfo.
type symbolFilter struct {
	stepSize float64
	tickSize float64
}

type BinanceAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client

	wsConn *websocket.Conn
	prices map[string]cachedPrice

	filters   map[string]symbolFilter
	filtersAt time.Time

	mu sync.Mutex
}

func NewBinanceAdapter(apiKey, apiSecret, baseURL, wsURL string) *BinanceAdapter {
	if baseURL == "" {
		baseURL = BinanceBaseURL
	}
	if wsURL == "" {
		wsURL = BinanceWSURL
	}
	return &BinanceAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		prices:    make(map[string]cachedPrice),
		filters:   make(map[string]symbolFilter),
	}
}

// --- REST API ---

func (b *BinanceAdapter) sign(query string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// sendSigned issues an authenticated request. Binance signs the full
// query string including the timestamp.
func (b *BinanceAdapter) sendSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	query := params.Encode()
	query += "&signature=" + b.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("binance api error %d: %s", apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("binance api error: %s", string(body))
	}

	return body, nil
}

func (b *BinanceAdapter) sendPublic(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("binance api error: %s", string(body))
	}

	return body, nil
}

func (b *BinanceAdapter) TestConnectivity(ctx context.Context) bool {
	_, err := b.sendPublic(ctx, "/api/v3/ping")
	return err == nil
}

func (b *BinanceAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	cached, ok := b.prices[symbol]
	b.mu.Unlock()
	if ok && time.Since(cached.updatedAt) < priceStaleAfter {
		return cached.price, nil
	}

	body, err := b.sendPublic(ctx, "/api/v3/ticker/price?symbol="+symbol)
	if err != nil {
		return 0, err
	}

	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}

	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price for %s: %w", symbol, err)
	}

	b.mu.Lock()
	b.prices[symbol] = cachedPrice{price: price, updatedAt: time.Now()}
	b.mu.Unlock()

	return price, nil
}

func (b *BinanceAdapter) GetUSDTBalance(ctx context.Context) (float64, error) {
	balances, err := b.GetAccountBalances(ctx)
	if err != nil {
		return 0, err
	}
	return balances["USDT"].Free, nil
}

func (b *BinanceAdapter) GetAccountBalances(ctx context.Context) (map[string]domain.Balance, error) {
	body, err := b.sendSigned(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	balances := make(map[string]domain.Balance, len(result.Balances))
	for _, raw := range result.Balances {
		free, _ := strconv.ParseFloat(raw.Free, 64)
		locked, _ := strconv.ParseFloat(raw.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		balances[raw.Asset] = domain.Balance{
			Free:   free,
			Locked: locked,
			Total:  free + locked,
		}
	}

	return balances, nil
}

func (b *BinanceAdapter) placeMarketOrder(ctx context.Context, symbol, side string, quantity float64) (*domain.Fill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	params.Set("newClientOrderId", uuid.NewString())
	params.Set("newOrderRespType", "FULL")

	body, err := b.sendSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		Fills       []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if result.Status != "FILLED" && result.Status != "PARTIALLY_FILLED" {
		return nil, fmt.Errorf("binance order not filled: status=%s", result.Status)
	}

	executed, _ := strconv.ParseFloat(result.ExecutedQty, 64)
	if executed <= 0 {
		return nil, fmt.Errorf("binance order executed zero quantity")
	}

	// Volume weighted average over the partial fills.
	var notional float64
	for _, f := range result.Fills {
		price, _ := strconv.ParseFloat(f.Price, 64)
		qty, _ := strconv.ParseFloat(f.Qty, 64)
		notional += price * qty
	}
	avgPrice := notional / executed

	return &domain.Fill{Price: avgPrice, Quantity: executed}, nil
}

func (b *BinanceAdapter) MarketBuy(ctx context.Context, symbol string, quantity float64) (*domain.Fill, error) {
	return b.placeMarketOrder(ctx, symbol, "BUY", quantity)
}

func (b *BinanceAdapter) MarketSell(ctx context.Context, symbol string, quantity float64) (*domain.Fill, error) {
	return b.placeMarketOrder(ctx, symbol, "SELL", quantity)
}

func (b *BinanceAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	path := fmt.Sprintf("/api/v3/klines?symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
	body, err := b.sendPublic(ctx, path)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		// Format: [openTime, open, high, low, close, volume, ...]
		if len(k) < 6 {
			continue
		}

		ts, _ := k[0].(float64)
		open := parseKlineField(k[1])
		high := parseKlineField(k[2])
		low := parseKlineField(k[3])
		closePrice := parseKlineField(k[4])
		volume := parseKlineField(k[5])

		candles = append(candles, domain.Candle{
			Time:   int64(ts) / 1000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	// Binance returns klines oldest first already.
	return candles, nil
}

func parseKlineField(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// --- Rounding filters ---

const filtersRefreshAfter = time.Hour

func (b *BinanceAdapter) loadFilters(ctx context.Context) error {
	b.mu.Lock()
	fresh := len(b.filters) > 0 && time.Since(b.filtersAt) < filtersRefreshAfter
	b.mu.Unlock()
	if fresh {
		return nil
	}

	body, err := b.sendPublic(ctx, "/api/v3/exchangeInfo")
	if err != nil {
		return err
	}

	var result struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return err
	}

	filters := make(map[string]symbolFilter, len(result.Symbols))
	for _, s := range result.Symbols {
		var f symbolFilter
		for _, fl := range s.Filters {
			switch fl.FilterType {
			case "LOT_SIZE":
				f.stepSize, _ = strconv.ParseFloat(fl.StepSize, 64)
			case "PRICE_FILTER":
				f.tickSize, _ = strconv.ParseFloat(fl.TickSize, 64)
			}
		}
		filters[s.Symbol] = f
	}

	b.mu.Lock()
	b.filters = filters
	b.filtersAt = time.Now()
	b.mu.Unlock()

	return nil
}

// RoundQuantity floors quantity to the symbol's lot step. Falls back to
// 6 decimals when exchangeInfo is unavailable.
func (b *BinanceAdapter) RoundQuantity(symbol string, quantity float64) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.loadFilters(ctx); err == nil {
		b.mu.Lock()
		f, ok := b.filters[symbol]
		b.mu.Unlock()
		if ok && f.stepSize > 0 {
			return floorToStep(quantity, f.stepSize)
		}
	}
	return floorToStep(quantity, 1e-6)
}

// RoundPrice floors price to the symbol's tick size.
func (b *BinanceAdapter) RoundPrice(symbol string, price float64) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.loadFilters(ctx); err == nil {
		b.mu.Lock()
		f, ok := b.filters[symbol]
		b.mu.Unlock()
		if ok && f.tickSize > 0 {
			return floorToStep(price, f.tickSize)
		}
	}
	return floorToStep(price, 1e-2)
}

func floorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	steps := math.Floor(value/step + 1e-9)
	rounded := steps * step
	// Re-quantize to kill float artifacts like 0.30000000000000004.
	decimals := int(math.Ceil(-math.Log10(step)))
	if decimals < 0 {
		decimals = 0
	}
	shift := math.Pow(10, float64(decimals))
	return math.Round(rounded*shift) / shift
}

// --- WebSocket price stream ---

// ConnectWS subscribes to the miniTicker stream for the given symbols
// and keeps the price cache warm. GetCurrentPrice serves from the cache
// while the stream is healthy and falls back to REST otherwise.
func (b *BinanceAdapter) ConnectWS(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn != nil {
		return b.subscribe(symbols)
	}

	c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}
	b.wsConn = c

	go b.readLoop(c)

	return b.subscribe(symbols)
}

func (b *BinanceAdapter) subscribe(symbols []string) error {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = strings.ToLower(s) + "@miniTicker"
	}

	subMsg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().UnixMilli(),
	}
	return b.wsConn.WriteJSON(subMsg)
}

func (b *BinanceAdapter) readLoop(c *websocket.Conn) {
	defer func() {
		c.Close()
		b.mu.Lock()
		if b.wsConn == c {
			b.wsConn = nil
		}
		b.mu.Unlock()
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return
		}

		var event struct {
			EventType string `json:"e"`
			Symbol    string `json:"s"`
			Close     string `json:"c"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if event.EventType != "24hrMiniTicker" {
			continue
		}

		price, err := strconv.ParseFloat(event.Close, 64)
		if err != nil || price <= 0 {
			continue
		}

		b.mu.Lock()
		b.prices[event.Symbol] = cachedPrice{price: price, updatedAt: time.Now()}
		b.mu.Unlock()
	}
}

// CloseWS tears down the stream connection if one is open.
func (b *BinanceAdapter) CloseWS() {
	b.mu.Lock()
	c := b.wsConn
	b.wsConn = nil
	b.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

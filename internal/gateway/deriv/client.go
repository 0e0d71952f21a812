// Package deriv implements the primary venue client: a websocket JSON API in
// the Deriv style, serving both market data (ticks, candle history) and
// binary-contract trading (buy, open-contract status).
package deriv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"riptide/internal/gateway/exchange"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/types"
)

// Config describes the websocket endpoint and timeouts.
type Config struct {
	Endpoint    string
	AppID       string
	APIToken    string
	CallTimeout time.Duration
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = "wss://ws.derivws.com/websockets/v3"
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
	return c
}

// Client multiplexes request/response calls and subscription streams over a
// single websocket connection. Responses are correlated by req_id; pushed
// tick and contract messages are routed by their payload keys.
type Client struct {
	cfg  Config
	conn *websocket.Conn

	writeMu sync.Mutex
	reqID   atomic.Int64

	mu           sync.Mutex
	pending      map[int64]chan gjson.Result
	tickCh       chan market.Tick
	contractSubs map[string]func(exchange.ContractState)
	closed       bool

	statsMu sync.Mutex
	stats   market.SourceStats
}

// Dial connects and starts the read loop.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	url := cfg.Endpoint
	if cfg.AppID != "" {
		url = fmt.Sprintf("%s?app_id=%s", cfg.Endpoint, cfg.AppID)
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("deriv: dial %s: %w", cfg.Endpoint, err)
	}
	c := &Client{
		cfg:          cfg,
		conn:         conn,
		pending:      make(map[int64]chan gjson.Result),
		contractSubs: make(map[string]func(exchange.ContractState)),
	}
	go c.readLoop()

	if cfg.APIToken != "" {
		if _, err := c.call(ctx, map[string]any{"authorize": cfg.APIToken}); err != nil {
			c.Close()
			return nil, fmt.Errorf("deriv: authorize: %w", err)
		}
	}
	return c, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	if c.tickCh != nil {
		close(c.tickCh)
		c.tickCh = nil
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) Stats() market.SourceStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// call sends one request and waits for the correlated response or timeout.
func (c *Client) call(ctx context.Context, payload map[string]any) (gjson.Result, error) {
	id := c.reqID.Add(1)
	payload["req_id"] = id

	ch := make(chan gjson.Result, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return gjson.Result{}, fmt.Errorf("deriv: client closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(payload); err != nil {
		return gjson.Result{}, err
	}

	timeout := time.NewTimer(c.cfg.CallTimeout)
	defer timeout.Stop()
	select {
	case res, ok := <-ch:
		if !ok {
			return gjson.Result{}, fmt.Errorf("deriv: connection closed mid-call")
		}
		if errMsg := res.Get("error.message"); errMsg.Exists() {
			return gjson.Result{}, fmt.Errorf("deriv: %s (%s)", errMsg.String(), res.Get("error.code").String())
		}
		return res, nil
	case <-timeout.C:
		return gjson.Result{}, fmt.Errorf("deriv: call timed out after %s", c.cfg.CallTimeout)
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	}
}

func (c *Client) send(payload map[string]any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				logger.Warnf("deriv: read loop terminated: %v", err)
				c.recordError(err)
				c.Close()
			}
			return
		}
		c.dispatch(gjson.ParseBytes(data))
	}
}

func (c *Client) dispatch(msg gjson.Result) {
	// A message answering an in-flight call resolves that call; later pushes
	// reuse the subscribe req_id but by then the pending entry is gone.
	if id := msg.Get("req_id").Int(); id > 0 {
		c.mu.Lock()
		ch, ok := c.pending[id]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
			return
		}
	}

	switch msg.Get("msg_type").String() {
	case "tick":
		c.dispatchTick(msg)
	case "proposal_open_contract":
		c.dispatchContract(msg)
	}
}

func (c *Client) dispatchTick(msg gjson.Result) {
	c.mu.Lock()
	ch := c.tickCh
	c.mu.Unlock()
	if ch == nil {
		return
	}
	t := market.Tick{
		Symbol: msg.Get("tick.symbol").String(),
		Price:  msg.Get("tick.quote").Float(),
		Epoch:  msg.Get("tick.epoch").Int(),
	}
	select {
	case ch <- t:
	default:
		// Slow consumer: drop rather than stall the read loop.
	}
}

func (c *Client) dispatchContract(msg gjson.Result) {
	id := msg.Get("proposal_open_contract.contract_id").String()
	if id == "" {
		return
	}
	c.mu.Lock()
	fn, ok := c.contractSubs[id]
	c.mu.Unlock()
	if ok {
		fn(parseContractState(msg.Get("proposal_open_contract")))
	}
}

// FetchCandles implements market.Source. Symbols without native candle data
// return an error so callers can fall back to tick synthesis.
func (c *Client) FetchCandles(ctx context.Context, symbol string, granularitySec int64, count int) ([]market.Candle, error) {
	if count <= 0 {
		count = 60
	}
	res, err := c.call(ctx, map[string]any{
		"ticks_history": symbol,
		"style":         "candles",
		"granularity":   granularitySec,
		"count":         count,
		"end":           "latest",
	})
	if err != nil {
		return nil, err
	}
	raw := res.Get("candles")
	if !raw.Exists() {
		return nil, fmt.Errorf("deriv: no candle data for %s", symbol)
	}
	var out []market.Candle
	raw.ForEach(func(_, v gjson.Result) bool {
		out = append(out, market.Candle{
			OpenTime: v.Get("epoch").Int(),
			Open:     v.Get("open").Float(),
			High:     v.Get("high").Float(),
			Low:      v.Get("low").Float(),
			Close:    v.Get("close").Float(),
		})
		return true
	})
	return out, nil
}

// SubscribeTicks implements market.Source. All symbols share one channel.
func (c *Client) SubscribeTicks(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.Tick, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	c.mu.Lock()
	if c.tickCh == nil {
		c.tickCh = make(chan market.Tick, buffer)
	}
	ch := c.tickCh
	c.mu.Unlock()

	for _, symbol := range symbols {
		if _, err := c.call(ctx, map[string]any{"ticks": symbol, "subscribe": 1}); err != nil {
			c.recordSubscribeError(err)
			return nil, fmt.Errorf("deriv: subscribe %s: %w", symbol, err)
		}
	}
	if opts.OnConnect != nil {
		opts.OnConnect()
	}
	return ch, nil
}

// PlaceOrder implements exchange.Trading via the one-shot buy call.
func (c *Client) PlaceOrder(ctx context.Context, spec exchange.OrderSpec) (*exchange.OrderResult, error) {
	params := map[string]any{
		"contract_type": contractTypeFor(spec.Side),
		"symbol":        spec.Symbol,
		"currency":      "USD",
		"amount":        spec.Stake,
		"basis":         "stake",
		"duration":      spec.DurationTicks,
		"duration_unit": "t",
	}
	if spec.Barrier != "" {
		params["barrier"] = spec.Barrier
	}
	res, err := c.call(ctx, map[string]any{
		"buy":        1,
		"price":      spec.Stake,
		"parameters": params,
	})
	if err != nil {
		return nil, err
	}
	contractID := res.Get("buy.contract_id").String()
	if contractID == "" {
		return nil, fmt.Errorf("deriv: buy confirmed without contract id")
	}
	return &exchange.OrderResult{
		ContractID: contractID,
		EntryPrice: res.Get("buy.start_spot").Float(),
	}, nil
}

// QueryContract implements exchange.Trading.
func (c *Client) QueryContract(ctx context.Context, contractID string) (*exchange.ContractState, error) {
	id, err := strconv.ParseInt(contractID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("deriv: bad contract id %q: %w", contractID, err)
	}
	res, err := c.call(ctx, map[string]any{"proposal_open_contract": 1, "contract_id": id})
	if err != nil {
		return nil, err
	}
	state := parseContractState(res.Get("proposal_open_contract"))
	return &state, nil
}

// SubscribeContract implements exchange.Trading.
func (c *Client) SubscribeContract(ctx context.Context, contractID string, fn func(exchange.ContractState)) error {
	id, err := strconv.ParseInt(contractID, 10, 64)
	if err != nil {
		return fmt.Errorf("deriv: bad contract id %q: %w", contractID, err)
	}
	c.mu.Lock()
	c.contractSubs[contractID] = fn
	c.mu.Unlock()

	_, err = c.call(ctx, map[string]any{
		"proposal_open_contract": 1,
		"contract_id":            id,
		"subscribe":              1,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.contractSubs, contractID)
		c.mu.Unlock()
	}
	return err
}

func parseContractState(v gjson.Result) exchange.ContractState {
	return exchange.ContractState{
		ContractID:   v.Get("contract_id").String(),
		IsSettled:    v.Get("is_sold").Int() == 1 || strings.EqualFold(v.Get("status").String(), "sold"),
		Profit:       v.Get("profit").Float(),
		CurrentPrice: v.Get("current_spot").Float(),
	}
}

func contractTypeFor(side types.ContractSide) string {
	switch side {
	case types.SideRise:
		return "CALL"
	case types.SideFall:
		return "PUT"
	case types.SideDigitOver:
		return "DIGITOVER"
	case types.SideDigitUnder:
		return "DIGITUNDER"
	default:
		return "CALL"
	}
}

func (c *Client) recordError(err error) {
	c.statsMu.Lock()
	c.stats.LastError = err.Error()
	c.statsMu.Unlock()
}

func (c *Client) recordSubscribeError(err error) {
	c.statsMu.Lock()
	c.stats.SubscribeErrors++
	c.stats.LastError = err.Error()
	c.statsMu.Unlock()
}

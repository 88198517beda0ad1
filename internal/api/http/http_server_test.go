package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/olyamironova/matching-engine/internal/adapter/in_memory"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/service"
	"github.com/olyamironova/matching-engine/internal/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (http.Handler, *stream.Hub) {
	t.Helper()
	hub := stream.NewHub(8)
	ex, err := service.New(
		service.Config{Pairs: []string{"BTC/USD", "ETH/USD"}},
		zaptest.NewLogger(t),
		service.WithPublishers(hub),
		service.WithArchive(in_memory.NewMemoryRepo()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewHTTPServer(ex, hub, Config{}, zaptest.NewLogger(t)).Handler(), hub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type addResp struct {
	Success bool           `json:"success"`
	OrderID string         `json:"order_id"`
	Trades  []domain.Trade `json:"trades"`
	Error   string         `json:"error"`
}

func TestAddOrderAndMatch(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/add_order", `{"side":"sell","price":100,"quantity":"2","trader_id":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sell: %d %s", w.Code, w.Body.String())
	}
	var sell addResp
	decode(t, w, &sell)
	if !sell.Success || sell.OrderID == "" || len(sell.Trades) != 0 {
		t.Errorf("unexpected sell response %+v", sell)
	}

	w = do(t, h, http.MethodPost, "/api/add_order", `{"side":"buy","price":101,"quantity":1,"trader_id":"bob"}`)
	var buy addResp
	decode(t, w, &buy)
	if len(buy.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %+v", buy)
	}
	tr := buy.Trades[0]
	if tr.BuyerID != "bob" || tr.SellerID != "alice" || tr.SellOrderID != sell.OrderID {
		t.Errorf("unexpected trade %+v", tr)
	}
	if tr.Price.String() != "100" {
		t.Errorf("trade should print at the sell price, got %s", tr.Price)
	}

	w = do(t, h, http.MethodGet, "/api/orderbook/BTC%2FUSD", "")
	var book domain.BookUpdate
	decode(t, w, &book)
	if book.Pair != "BTC/USD" || len(book.Bids) != 0 || len(book.Asks) != 1 || book.Asks[0].Quantity.String() != "1" {
		t.Errorf("unexpected book %+v", book)
	}

	w = do(t, h, http.MethodGet, "/api/trades?limit=10", "")
	var trades []domain.Trade
	decode(t, w, &trades)
	if len(trades) != 1 {
		t.Errorf("expected 1 recent trade, got %d", len(trades))
	}

	w = do(t, h, http.MethodGet, "/api/market_data", "")
	var stats domain.MarketStats
	decode(t, w, &stats)
	if stats.TotalTrades != 1 || stats.ActiveOrders != 1 || !stats.LastPrice.Valid {
		t.Errorf("unexpected stats %+v", stats)
	}

	w = do(t, h, http.MethodGet, "/api/orders/"+sell.OrderID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get order: %d", w.Code)
	}
	var got struct {
		Order  domain.Order   `json:"order"`
		Trades []domain.Trade `json:"trades"`
	}
	decode(t, w, &got)
	if got.Order.Status != domain.PartiallyFilled || len(got.Trades) != 1 {
		t.Errorf("unexpected order %+v", got)
	}
}

func TestAddOrderValidation(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"bad side", `{"side":"hold","price":1,"quantity":1}`, http.StatusBadRequest, "Side must be 'buy' or 'sell'"},
		{"zero price", `{"side":"buy","price":0,"quantity":1}`, http.StatusBadRequest, "Price must be positive"},
		{"negative quantity", `{"side":"sell","price":1,"quantity":-1}`, http.StatusBadRequest, "Quantity must be positive"},
		{"price exponent out of range", `{"side":"buy","price":"1e-20000000","quantity":1}`, http.StatusBadRequest, "Price must have at most 18 decimal places and 38 digits"},
		{"quantity exponent out of range", `{"side":"sell","price":1,"quantity":"1e90"}`, http.StatusBadRequest, "Quantity must have at most 18 decimal places and 38 digits"},
		{"unknown pair", `{"side":"buy","price":1,"quantity":1,"pair":"XRP/USD"}`, http.StatusNotFound, ""},
		{"bad json", `{"side":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/add_order", tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d %s", tt.code, w.Code, w.Body.String())
			}
			var resp addResp
			decode(t, w, &resp)
			if resp.Success {
				t.Error("success should be false")
			}
			if tt.err != "" && resp.Error != tt.err {
				t.Errorf("expected error %q, got %q", tt.err, resp.Error)
			}
		})
	}

	w := do(t, h, http.MethodGet, "/api/market_data", "")
	var stats domain.MarketStats
	decode(t, w, &stats)
	if stats.ActiveOrders != 0 {
		t.Errorf("rejected orders must not rest, got %d", stats.ActiveOrders)
	}
}

func TestCancelOrder(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/add_order", `{"side":"buy","price":50,"quantity":1,"pair":"eth-usd"}`)
	var added addResp
	decode(t, w, &added)

	w = do(t, h, http.MethodPost, "/api/cancel_order", `{"order_id":"`+added.OrderID+`","pair":"ETH/USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/cancel_order", `{"order_id":"missing"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var resp addResp
	decode(t, w, &resp)
	if resp.Error != "Order not found" {
		t.Errorf("unexpected error %q", resp.Error)
	}

	w = do(t, h, http.MethodGet, "/api/orderbook/ETH-USD", "")
	var book domain.BookUpdate
	decode(t, w, &book)
	if len(book.Bids) != 0 {
		t.Errorf("cancelled order still on the book: %+v", book.Bids)
	}

	w = do(t, h, http.MethodGet, "/api/orders/"+added.OrderID+"?pair=ETH-USD", "")
	var got struct {
		Order domain.Order `json:"order"`
	}
	decode(t, w, &got)
	if got.Order.Status != domain.Cancelled || !got.Order.Remaining.IsZero() {
		t.Errorf("unexpected cancelled order %+v", got.Order)
	}
}

func TestQueryErrors(t *testing.T) {
	h, _ := newTestServer(t)

	if w := do(t, h, http.MethodGet, "/api/orderbook/BTC-USD?depth=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad depth: expected 400, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/orderbook/DOGE-USD", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown pair: expected 404, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/orders/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown order: expected 404, got %d", w.Code)
	}

	w := do(t, h, http.MethodGet, "/api/pairs", "")
	var pairs struct {
		Pairs   []string `json:"pairs"`
		Default string   `json:"default"`
	}
	decode(t, w, &pairs)
	if len(pairs.Pairs) != 2 || pairs.Default != "BTC/USD" {
		t.Errorf("unexpected pairs %+v", pairs)
	}
}

func TestEmptyBookSerialisesEmptyArrays(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodGet, "/api/orderbook/BTC-USD", "")
	if !bytes.Contains(w.Body.Bytes(), []byte(`"bids":[]`)) || !bytes.Contains(w.Body.Bytes(), []byte(`"asks":[]`)) {
		t.Errorf("expected empty arrays, got %s", w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/api/market_data", "")
	if !bytes.Contains(w.Body.Bytes(), []byte(`"last_price":null`)) {
		t.Errorf("expected null last price, got %s", w.Body.String())
	}
}

func TestStreamSendsSnapshotThenUpdates(t *testing.T) {
	h, hub := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream?pair=BTC-USD", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	events := make(chan domain.BookUpdate, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var u domain.BookUpdate
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &u) == nil {
				events <- u
			}
		}
		close(events)
	}()

	first := <-events
	if first.Pair != "BTC/USD" || len(first.Bids) != 0 {
		t.Fatalf("unexpected first event %+v", first)
	}

	for hub.Subscribers("BTC/USD") == 0 {
		time.Sleep(time.Millisecond)
	}
	do(t, h, http.MethodPost, "/api/add_order", `{"side":"buy","price":10,"quantity":3}`)

	select {
	case u := <-events:
		if len(u.Bids) != 1 || u.Bids[0].Quantity.String() != "3" {
			t.Errorf("unexpected update %+v", u)
		}
	case <-ctx.Done():
		t.Fatal("no update received")
	}
}

// subscriberCountingCache records how many stream subscribers exist each
// time a book is read.
type subscriberCountingCache struct {
	*in_memory.Cache
	hub  *stream.Hub
	seen []int
}

func (c *subscriberCountingCache) GetBook(ctx context.Context, pair string) (*domain.BookUpdate, error) {
	c.seen = append(c.seen, c.hub.Subscribers(pair))
	return c.Cache.GetBook(ctx, pair)
}

type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool { return r.closed }

func TestStreamSubscribesBeforeReadingBook(t *testing.T) {
	hub := stream.NewHub(8)
	cache := &subscriberCountingCache{Cache: in_memory.NewCache(), hub: hub}
	ex, err := service.New(service.Config{Pairs: []string{"BTC/USD"}}, zaptest.NewLogger(t),
		service.WithPublishers(hub), service.WithCache(cache))
	if err != nil {
		t.Fatal(err)
	}
	h := NewHTTPServer(ex, hub, Config{}, zaptest.NewLogger(t)).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	h.ServeHTTP(w, req)

	if len(cache.seen) != 1 || cache.seen[0] != 1 {
		t.Fatalf("book should be read with the subscription in place, saw %v", cache.seen)
	}
	if !strings.Contains(w.Body.String(), "event:"+bookUpdateEvent) {
		t.Errorf("expected the current book as first event, got %q", w.Body.String())
	}
	if n := hub.Subscribers("BTC/USD"); n != 0 {
		t.Errorf("subscription leaked after the client left: %d", n)
	}
}

func TestStreamUnknownPair(t *testing.T) {
	h, hub := newTestServer(t)
	w := do(t, h, http.MethodGet, "/api/stream?pair=XRP-USD", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if n := hub.Subscribers("XRP/USD"); n != 0 {
		t.Errorf("unknown pair must not subscribe, got %d", n)
	}
}

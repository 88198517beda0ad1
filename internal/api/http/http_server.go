package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/api/dto"
	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/middleware"
	"github.com/olyamironova/matching-engine/internal/service"
	"github.com/olyamironova/matching-engine/internal/stream"
)

const bookUpdateEvent = "orderbook_update"

type Config struct {
	// RateLimit is the minimum interval between mutating requests of one
	// trader; zero or negative disables limiting.
	RateLimit  time.Duration
	TradeLimit int
}

type HTTPServer struct {
	ex  *service.Exchange
	hub *stream.Hub
	cfg Config
	log *zap.Logger
}

func NewHTTPServer(ex *service.Exchange, hub *stream.Hub, cfg Config, log *zap.Logger) *HTTPServer {
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = core.DefaultTradesLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPServer{ex: ex, hub: hub, cfg: cfg, log: log}
}

// Handler builds the gin router. Pairs in the path may be URL-escaped
// (BTC%2FUSD) or dashed (BTC-USD).
func (s *HTTPServer) Handler() http.Handler {
	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery(), middleware.RequestLogger(s.log))

	rl := middleware.NewRateLimiter(s.cfg.RateLimit)

	api := r.Group("/api")
	api.GET("/pairs", s.getPairs)
	api.GET("/orderbook/:pair", s.getOrderbook)
	api.POST("/add_order", rl.Middleware(), s.addOrder)
	api.POST("/cancel_order", rl.Middleware(), s.cancelOrder)
	api.GET("/orders/:id", s.getOrder)
	api.GET("/trades", s.getTrades)
	api.GET("/market_data", s.getMarketData)
	api.GET("/stream", s.streamBook)

	return r
}

func (s *HTTPServer) getPairs(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PairsResponse{Pairs: s.ex.Pairs(), Default: s.ex.DefaultPair()})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	depth, ok := intQuery(c, "depth")
	if !ok {
		return
	}
	book, err := s.ex.OrderBook(c.Request.Context(), c.Param("pair"), depth)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *HTTPServer) addOrder(c *gin.Context) {
	var req dto.AddOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}

	traderID := req.TraderID
	if traderID == "" {
		traderID = c.GetHeader(middleware.TraderIDHeader)
	}
	p, err := s.ex.AddOrder(c.Request.Context(), service.OrderRequest{
		Pair:     req.Pair,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		TraderID: traderID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	trades := p.Trades
	if trades == nil {
		trades = []domain.Trade{}
	}
	c.JSON(http.StatusOK, dto.AddOrderResponse{Success: true, OrderID: p.OrderID, Trades: trades})
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(err.Error()))
		return
	}
	ok, err := s.ex.CancelOrder(c.Request.Context(), req.Pair, req.OrderID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, dto.Fail("Order not found"))
		return
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{Success: true})
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	id := c.Param("id")
	o, ok, err := s.ex.Order(c.Query("pair"), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, dto.Fail("Order not found"))
		return
	}
	trades, err := s.ex.OrderTrades(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderResponse{Order: o, Trades: trades})
}

func (s *HTTPServer) getTrades(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	if limit <= 0 {
		limit = s.cfg.TradeLimit
	}
	trades, err := s.ex.RecentTrades(c.Query("pair"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *HTTPServer) getMarketData(c *gin.Context) {
	stats, err := s.ex.MarketStats(c.Query("pair"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// streamBook sends the current book, then every update for the pair until
// the client goes away. The subscription is taken before the book is read
// so no update falls between the two.
func (s *HTTPServer) streamBook(c *gin.Context) {
	ctx := c.Request.Context()
	pair, err := s.ex.ResolvePair(c.Query("pair"))
	if err != nil {
		s.fail(c, err)
		return
	}

	updates, unsubscribe := s.hub.Subscribe(pair)
	defer unsubscribe()

	book, err := s.ex.OrderBook(ctx, pair, 0)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(bookUpdateEvent, book)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(bookUpdateEvent, u)
			return true
		}
	})
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, dto.Fail(ve.Reason))
	case errors.Is(err, service.ErrUnknownPair):
		c.JSON(http.StatusNotFound, dto.Fail(err.Error()))
	default:
		s.log.Error("request failed", zap.String("request_id", middleware.RequestID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.Fail("internal error"))
	}
}

// intQuery parses an optional integer query parameter, answering 400 when
// it is malformed.
func intQuery(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(key+" must be an integer"))
		return 0, false
	}
	return n, true
}

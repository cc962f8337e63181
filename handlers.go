package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	searchLimit     = 15
	defaultCandles  = 30
	heartbeatPeriod = 15 * time.Second
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrEmptySymbol),
		errors.Is(err, ErrNegativeQuantity),
		errors.Is(err, ErrZeroQuantity),
		errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, ErrTrialExhausted):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrChatNotFound), errors.Is(err, ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, ErrNoModel):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func (ws *WebServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"subscribers": ws.hub.Subscribers(),
	})
}

// Chat backend

func (ws *WebServer) backendChat(c *gin.Context) {
	var req FreeChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := ws.backend.Free(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (ws *WebServer) backendProChat(c *gin.Context) {
	var req ProChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := ws.backend.Pro(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (ws *WebServer) backendPortfolio(c *gin.Context) {
	var req PortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, PortfolioResponse{Success: false, Data: &PortfolioSummary{}, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ws.summary.Handle(c.Request.Context(), req))
}

// Stocks

func (ws *WebServer) searchStocks(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}

	results := ws.search.Search(query, searchLimit)
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

func (ws *WebServer) getQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, ws.poller.Quotes())
}

func (ws *WebServer) getQuote(c *gin.Context) {
	quote, ok := ws.poller.Quote(c.Param("symbol"))
	if !ok {
		abortWithError(c, ErrUnknownSymbol)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (ws *WebServer) refreshQuotes(c *gin.Context) {
	if err := ws.poller.Refresh(c.Request.Context(), false); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.poller.Quotes())
}

func (ws *WebServer) getCandles(c *gin.Context) {
	stock, ok := ws.search.Lookup(c.Param("symbol"))
	if !ok {
		abortWithError(c, ErrUnknownSymbol)
		return
	}

	days := defaultCandles
	if daysQuery := c.Query("days"); daysQuery != "" {
		if d, err := parseDays(daysQuery); err == nil && d > 0 {
			days = d
		}
	}

	candles, err := ws.poller.Candles(c.Request.Context(), stock.Symbol, days)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  stock.Symbol,
		"name":    stock.Name,
		"days":    days,
		"candles": candles,
	})
}

func parseDays(s string) (int, error) {
	var days int
	_, err := fmt.Sscanf(s, "%d", &days)
	return days, err
}

// Portfolio

func (ws *WebServer) portfolioOf(c *gin.Context) (*PortfolioStore, bool) {
	store, err := ws.portfolios.For(identityOf(c))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return store, true
}

func (ws *WebServer) getPortfolio(c *gin.Context) {
	store, ok := ws.portfolioOf(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, store.Holdings())
}

func (ws *WebServer) addHolding(c *gin.Context) {
	var req AddHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	store, ok := ws.portfolioOf(c)
	if !ok {
		return
	}

	holding := Holding{
		Symbol:   req.Symbol,
		Name:     req.Name,
		Quantity: req.Quantity,
	}
	// Unset prices fall back to the live quote.
	quote, known := ws.poller.Quote(req.Symbol)
	if holding.Name == "" && known {
		holding.Name = quote.Name
	}
	holding.CurrentPrice = pick(req.CurrentPrice, quote.Price)
	holding.AvgPrice = pick(req.AvgPrice, &holding.CurrentPrice)
	holding.Change = pick(req.Change, quote.Change)
	holding.PercentChange = pick(req.PercentChange, quote.PercentChange)

	if err := store.Add(holding); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, store.Holdings())
}

func pick(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func (ws *WebServer) replacePortfolio(c *gin.Context) {
	var req ReplacePortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, h := range req.Stocks {
		if h.Quantity < 0 {
			abortWithError(c, ErrNegativeQuantity)
			return
		}
	}
	store, ok := ws.portfolioOf(c)
	if !ok {
		return
	}
	store.Replace(req.Stocks)
	c.JSON(http.StatusOK, store.Holdings())
}

func (ws *WebServer) removeHolding(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}
	store, ok := ws.portfolioOf(c)
	if !ok {
		return
	}
	store.Remove(symbol)
	c.JSON(http.StatusOK, store.Holdings())
}

func (ws *WebServer) getPortfolioSummary(c *gin.Context) {
	summary, err := ws.summary.Summary(identityOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Tax

func (ws *WebServer) estimateTax(c *gin.Context) {
	var req TaxRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := ws.summary.Tax(identityOf(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (ws *WebServer) downloadReport(c *gin.Context) {
	var buf bytes.Buffer
	filename, err := ws.summary.Report(identityOf(c), &buf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Chat

func (ws *WebServer) getTrial(c *gin.Context) {
	trial, err := ws.relay.Trial(identityOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, trial)
}

func (ws *WebServer) listChats(c *gin.Context) {
	chats, err := ws.relay.Chats(identityOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (ws *WebServer) newChat(c *gin.Context) {
	chat, messages, err := ws.relay.NewChat(identityOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat, "messages": messages})
}

func (ws *WebServer) listMessages(c *gin.Context) {
	messages, err := ws.relay.Messages(identityOf(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// sendMessage posts to the chat in the path, or to a fresh chat when the
// path carries no id.
func (ws *WebServer) sendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := ws.relay.Send(c.Request.Context(), identityOf(c), c.Param("id"), req.Content)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Profile

func (ws *WebServer) signIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := ws.profiles.SignIn(identityOf(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ws *WebServer) getProfile(c *gin.Context) {
	profile, err := ws.profiles.Get(identityOf(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (ws *WebServer) setPro(c *gin.Context) {
	var req SetProRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := ws.profiles.SetPro(identityOf(c).UserID, req.IsPro)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (ws *WebServer) completePayment(c *gin.Context) {
	profile, err := ws.profiles.CompletePayment(identityOf(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}

// Alerts

func (ws *WebServer) listAlerts(c *gin.Context) {
	limit := 0
	if limitQuery := c.Query("limit"); limitQuery != "" {
		if l, err := parseDays(limitQuery); err == nil {
			limit = l
		}
	}
	alerts, err := ws.alerts.List(limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (ws *WebServer) sendAlert(c *gin.Context) {
	var req SendAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	alert, err := ws.alerts.SendAndSave(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "alert": alert})
}

// Events

// streamEvents sends the caller's current state, then every change, as
// server-sent events until the client goes away.
func (ws *WebServer) streamEvents(c *gin.Context) {
	id := identityOf(c)
	events, cancel := ws.hub.Subscribe(id.Owner())
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	for _, ev := range ws.initialEvents(id) {
		c.SSEvent(ev.Topic, ev)
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatPeriod)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Topic, ev)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
	ws.logger.Debug("event stream closed", zap.String("owner", id.Owner()))
}

func (ws *WebServer) initialEvents(id Identity) []Event {
	now := time.Now()
	events := []Event{{Topic: TopicQuotes, Payload: ws.poller.Quotes(), At: now}}

	if store, err := ws.portfolios.For(id); err == nil {
		events = append(events, Event{Topic: TopicPortfolio, Payload: store.Holdings(), At: now})
	}
	if id.SignedIn() {
		if profile, err := ws.profiles.Get(id.UserID); err == nil {
			events = append(events, Event{Topic: TopicProfile, Payload: profile, At: now})
		}
	}
	if trial, err := ws.relay.Trial(id); err == nil {
		events = append(events, Event{Topic: TopicTrial, Payload: trial, At: now})
	}
	if chats, err := ws.relay.Chats(id); err == nil {
		events = append(events, Event{Topic: TopicChats, Payload: chats, At: now})
	}
	if alerts, err := ws.alerts.List(20); err == nil {
		events = append(events, Event{Topic: TopicAlerts, Payload: alerts, At: now})
	}
	return events
}

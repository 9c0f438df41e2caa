package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all spotex metrics. Construct one per process and pass it
// explicitly; nothing here registers against the global registry.
type Collector struct {
	registry *prometheus.Registry

	// Order metrics
	OrdersTotal     *prometheus.CounterVec
	OrderRejections *prometheus.CounterVec
	OrderLatency    *prometheus.HistogramVec
	FillsPerOrder   *prometheus.HistogramVec

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec
	TradeValue  *prometheus.CounterVec

	// Book metrics
	BookOrders    *prometheus.GaugeVec
	BookBestPrice *prometheus.GaugeVec

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec
}

// NewCollector creates a collector backed by its own registry.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders accepted",
		},
		[]string{"ticker", "side", "type", "status"},
	)

	c.OrderRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "orders",
			Name:      "rejections_total",
			Help:      "Total number of rejected placements",
		},
		[]string{"ticker", "reason"},
	)

	c.OrderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spotex",
			Subsystem: "orders",
			Name:      "latency_ms",
			Help:      "Placement latency in milliseconds, admission through book apply",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		},
		[]string{"ticker", "type"},
	)

	c.FillsPerOrder = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spotex",
			Subsystem: "orders",
			Name:      "fills",
			Help:      "Number of fills produced by one placement",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"ticker"},
	)

	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trades executed",
		},
		[]string{"ticker"},
	)

	c.TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "trades",
			Name:      "volume",
			Help:      "Total traded quantity in base units",
		},
		[]string{"ticker"},
	)

	c.TradeValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "trades",
			Name:      "value_rub",
			Help:      "Total traded value in RUB",
		},
		[]string{"ticker"},
	)

	c.BookOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spotex",
			Subsystem: "book",
			Name:      "orders",
			Help:      "Number of resting orders per side",
		},
		[]string{"ticker", "side"},
	)

	c.BookBestPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spotex",
			Subsystem: "book",
			Name:      "best_price",
			Help:      "Best price per side, 0 when the side is empty",
		},
		[]string{"ticker", "side"},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spotex",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total WebSocket messages sent",
		},
		[]string{"channel"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spotex",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "path"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spotex",
			Subsystem: "api",
			Name:      "rate_limit_hits",
			Help:      "Total rate limit rejections",
		},
		[]string{"limit_type"},
	)

	c.registry.MustRegister(
		c.OrdersTotal,
		c.OrderRejections,
		c.OrderLatency,
		c.FillsPerOrder,
		c.TradesTotal,
		c.TradeVolume,
		c.TradeValue,
		c.BookOrders,
		c.BookBestPrice,
		c.WSConnectionsActive,
		c.WSMessagesTotal,
		c.APIRequestsTotal,
		c.APIRequestLatency,
		c.RateLimitHits,
	)

	return c
}

// RecordOrder records an accepted placement outcome.
func (c *Collector) RecordOrder(ticker, side, orderType, status string) {
	c.OrdersTotal.WithLabelValues(ticker, side, orderType, status).Inc()
}

// RecordRejection records a rejected placement.
func (c *Collector) RecordRejection(ticker, reason string) {
	c.OrderRejections.WithLabelValues(ticker, reason).Inc()
}

// RecordOrderLatency records end-to-end placement latency.
func (c *Collector) RecordOrderLatency(ticker, orderType string, latencyMs float64) {
	c.OrderLatency.WithLabelValues(ticker, orderType).Observe(latencyMs)
}

// RecordTrade records one fill.
func (c *Collector) RecordTrade(ticker string, qty, value int64) {
	c.TradesTotal.WithLabelValues(ticker).Inc()
	c.TradeVolume.WithLabelValues(ticker).Add(float64(qty))
	c.TradeValue.WithLabelValues(ticker).Add(float64(value))
}

// RecordFills records how many fills a placement produced.
func (c *Collector) RecordFills(ticker string, fills int) {
	c.FillsPerOrder.WithLabelValues(ticker).Observe(float64(fills))
}

// UpdateBook refreshes the book gauges for one ticker.
func (c *Collector) UpdateBook(ticker string, bidOrders, askOrders int, bestBid, bestAsk int64) {
	c.BookOrders.WithLabelValues(ticker, "BUY").Set(float64(bidOrders))
	c.BookOrders.WithLabelValues(ticker, "SELL").Set(float64(askOrders))
	c.BookBestPrice.WithLabelValues(ticker, "BUY").Set(float64(bestBid))
	c.BookBestPrice.WithLabelValues(ticker, "SELL").Set(float64(bestAsk))
}

// RecordAPIRequest records an API request.
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordWSMessage records a WebSocket message on a channel.
func (c *Collector) RecordWSMessage(channel string) {
	c.WSMessagesTotal.WithLabelValues(channel).Inc()
}

// Handler returns the scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds.
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}

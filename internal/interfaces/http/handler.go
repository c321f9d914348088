// @title           Order Book Aggregator API
// @version         1.0
// @description     Consolidated multi-venue order book summaries
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	domain "orderbook/internal/domain/entity/marketdata"
	"orderbook/internal/infrastructure/cache"
	"orderbook/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	bookBasePath = "/api/v1/book"
	writeWait    = 5 * time.Second
)

// SummaryOpener starts a live consolidated summary session.
type SummaryOpener interface {
	Open(ctx context.Context) (domain.Exchange[domain.Summary], error)
	Pair() string
	Venues() []domain.ExchangeID
}

// SummaryReader returns the last stored summary of a pair.
type SummaryReader interface {
	LatestSummary(ctx context.Context, pair string) (domain.Summary, error)
}

// Deps groups the collaborators of Handler. Latest, Cache and Metrics are
// optional.
type Deps struct {
	Books    SummaryOpener
	Latest   SummaryReader
	Cache    cache.Client
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
}

type Handler struct {
	router   *gin.Engine
	books    SummaryOpener
	latest   SummaryReader
	cache    cache.Client
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *logrus.Entry
	upgrader websocket.Upgrader

	done     chan struct{}
	doneOnce sync.Once
}

var _ http.Handler = (*Handler)(nil)

type venuesResponse struct {
	Pair   string   `json:"pair"`
	Venues []string `json:"venues"`
}

func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), accessLog(logger))

	h := &Handler{
		router:   router,
		books:    deps.Books,
		latest:   deps.Latest,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		metrics:  deps.Metrics,
		logger:   logger.WithField("component", "http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Shutdown ends every open summary stream. Register it with
// http.Server.RegisterOnShutdown since hijacked connections outlive Shutdown.
func (h *Handler) Shutdown() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *Handler) registerRoutes() {
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if h.metrics != nil {
		h.router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	book := h.router.Group(bookBasePath)
	{
		book.GET("/venues", h.getVenues)
		book.GET("/summary/stream", h.streamSummaries)
	}

	cached := h.router.Group(bookBasePath)
	if h.cache != nil {
		cached.Use(h.cacheMiddleware())
	}
	{
		cached.GET("/summary", h.getLatestSummary)
	}
}

// getVenues lists the merged venues
// @Summary      List venues
// @Description  Market pair and venues in tie-break priority order
// @Tags         book
// @Produce      json
// @Success      200  {object}  venuesResponse
// @Router       /book/venues [get]
func (h *Handler) getVenues(c *gin.Context) {
	ids := h.books.Venues()
	venues := make([]string, 0, len(ids))
	for _, id := range ids {
		venues = append(venues, id.String())
	}
	c.JSON(http.StatusOK, venuesResponse{Pair: h.books.Pair(), Venues: venues})
}

// getLatestSummary returns the last published summary
// @Summary      Latest summary
// @Description  Last consolidated summary stored by the feed, for the configured or requested pair
// @Tags         book
// @Produce      json
// @Param        pair  query     string  false  "Market pair, defaults to the configured one"
// @Success      200   {object}  domain.Summary
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /book/summary [get]
func (h *Handler) getLatestSummary(c *gin.Context) {
	if h.latest == nil {
		writeError(c, http.StatusServiceUnavailable, errors.New("summary store is not configured"))
		return
	}
	pair := c.DefaultQuery("pair", h.books.Pair())
	summary, err := h.latest.LatestSummary(c.Request.Context(), pair)
	if errors.Is(err, cache.ErrSummaryNotFound) {
		writeError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// streamSummaries pushes live summaries over a websocket
// @Summary      Stream summaries
// @Description  Upgrades to a websocket and writes one JSON summary per consolidated update. Every client gets its own venue session.
// @Tags         book
// @Produce      json
// @Success      101  {object}  domain.Summary
// @Failure      503  {object}  map[string]string
// @Router       /book/summary/stream [get]
func (h *Handler) streamSummaries(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := h.books.Open(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("open summary session")
		writeError(c, http.StatusServiceUnavailable, err)
		return
	}
	defer session.Conn.Close(context.WithoutCancel(ctx))

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer ws.Close()

	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()

	h.pump(ctx, ws, session.Stream, clientGone(ws))
}

func (h *Handler) pump(ctx context.Context, ws *websocket.Conn, summaries <-chan domain.Summary, gone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case <-h.done:
			goingAway(ws, "server shutting down")
			return
		case summary, ok := <-summaries:
			if !ok {
				goingAway(ws, "venues closed")
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(summary); err != nil {
				h.logger.WithError(err).Debug("websocket write failed")
				return
			}
		}
	}
}

func goingAway(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// clientGone drains client frames and reports when the client disconnects.
func clientGone(ws *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func accessLog(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"took_ms": time.Since(start).Milliseconds(),
		}).Debug("http request")
	}
}

// cacheMiddleware caches GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			if err := h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err(); err != nil {
				h.logger.WithError(err).Debug("cache response")
			}
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.FullPath(), c.Request.URL.RawQuery)
}

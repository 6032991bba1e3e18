// Package server exposes the execution and control-plane HTTP API.
package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sovrana/trading-engine/internal/storage"
	"github.com/sovrana/trading-engine/internal/types"
)

// Store is the persistence surface the HTTP boundary reads and writes.
type Store interface {
	SetGlobalKillSwitch(ctx context.Context, enabled bool) error
	SetAgentKillSwitch(ctx context.Context, agentID string, enabled bool) error
	Audit(ctx context.Context, eventType, agentID, entityType, entityID, message string, metadata map[string]interface{}, severity string) error
	ListOrders(ctx context.Context, agentID, status string, limit, offset int) ([]types.Order, error)
	ListFills(ctx context.Context, agentID string, limit, offset int) ([]types.Fill, error)
	ListPositions(ctx context.Context, agentID string, isOpen *bool) ([]types.Position, error)
	ListPnLSnapshots(ctx context.Context, agentID string, days int) ([]types.PnLSnapshot, error)
	ListAuditLogs(ctx context.Context, agentID, eventType string, limit, offset int) ([]storage.AuditEntry, error)
}

// Pipeline is the risk-then-execute path orders travel.
type Pipeline interface {
	Submit(ctx context.Context, request types.OrderRequest) types.ExecutionResult
	Cancel(ctx context.Context, agentID, orderID, exchangeOrderID string) types.CancelResult
}

type Server struct {
	store    Store
	pipeline Pipeline
	apiKey   string
}

func New(store Store, pipe Pipeline, apiKey string) *Server {
	return &Server{store: store, pipeline: pipe, apiKey: apiKey}
}

// Router builds the gin engine. Mutating routes require the API key when
// one is configured; reads and health stay open.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	router.GET("/orders", s.listOrders)
	router.GET("/fills", s.listFills)
	router.GET("/positions", s.listPositions)
	router.GET("/pnl", s.listPnL)
	router.GET("/audit", s.listAudit)

	protected := router.Group("/", s.requireAPIKey())
	protected.POST("/execute", s.execute)
	protected.POST("/cancel", s.cancel)
	protected.POST("/kill/global", s.globalKill)
	protected.POST("/kill/agent/:id", s.agentKill)

	return router
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey != "" && c.GetHeader("X-API-Key") != s.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "trading-engine"})
}

func (s *Server) execute(c *gin.Context) {
	var request types.OrderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if request.AgentID == "" || request.ConditionID == "" || request.SizeUSDC <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id, condition_id and positive size_usdc are required"})
		return
	}

	result := s.pipeline.Submit(c.Request.Context(), request)

	status := http.StatusOK
	if result.Status == types.OrderBlocked {
		status = http.StatusForbidden
	}
	c.JSON(status, result)
}

type cancelRequest struct {
	AgentID         string `json:"agent_id"`
	OrderID         string `json:"order_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
}

func (s *Server) cancel(c *gin.Context) {
	var request cancelRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if request.AgentID == "" || request.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id and order_id are required"})
		return
	}

	result := s.pipeline.Cancel(c.Request.Context(), request.AgentID, request.OrderID, request.ExchangeOrderID)

	status := http.StatusOK
	if result.Status != types.OrderCancelled {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

type killRequest struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

func (s *Server) globalKill(c *gin.Context) {
	var request killRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := s.store.SetGlobalKillSwitch(ctx, request.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.Audit(ctx, "global_kill_switch", "", "system", "", request.Reason,
		map[string]interface{}{"enabled": request.Enabled}, types.SeverityCritical); err != nil {
		log.Error().Err(err).Msg("Failed to audit global kill switch change")
	}

	log.Warn().Bool("enabled", request.Enabled).Str("reason", request.Reason).Msg("Global kill switch changed")
	c.JSON(http.StatusOK, gin.H{"global_kill_switch": request.Enabled})
}

func (s *Server) agentKill(c *gin.Context) {
	agentID := c.Param("id")

	var request killRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := s.store.SetAgentKillSwitch(ctx, agentID, request.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.Audit(ctx, "agent_kill_switch", agentID, "agent", agentID, request.Reason,
		map[string]interface{}{"enabled": request.Enabled}, types.SeverityCritical); err != nil {
		log.Error().Err(err).Msg("Failed to audit agent kill switch change")
	}

	log.Warn().Str("agent_id", agentID).Bool("enabled", request.Enabled).Msg("Agent kill switch changed")
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "kill_switch": request.Enabled})
}

func (s *Server) listOrders(c *gin.Context) {
	limit, offset := pagination(c)
	orders, err := s.store.ListOrders(c.Request.Context(), c.Query("agent_id"), c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (s *Server) listFills(c *gin.Context) {
	limit, offset := pagination(c)
	fills, err := s.store.ListFills(c.Request.Context(), c.Query("agent_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills, "count": len(fills)})
}

func (s *Server) listPositions(c *gin.Context) {
	var isOpen *bool
	if raw := c.Query("is_open"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_open must be a boolean"})
			return
		}
		isOpen = &parsed
	}

	positions, err := s.store.ListPositions(c.Request.Context(), c.Query("agent_id"), isOpen)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) listPnL(c *gin.Context) {
	days := intQuery(c, "days", 30)
	snapshots, err := s.store.ListPnLSnapshots(c.Request.Context(), c.Query("agent_id"), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots, "count": len(snapshots)})
}

func (s *Server) listAudit(c *gin.Context) {
	limit, offset := pagination(c)
	entries, err := s.store.ListAuditLogs(c.Request.Context(), c.Query("agent_id"), c.Query("event_type"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = intQuery(c, "limit", 100)
	if limit > 500 {
		limit = 500
	}
	offset = intQuery(c, "offset", 0)
	return limit, offset
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

package control

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tickflow/internal/execution"
	"tickflow/internal/instrument"
	"tickflow/internal/market"
	"tickflow/internal/store"
	"tickflow/internal/strategy"

	"github.com/gin-gonic/gin"
)

// Router 暴露执行记录查询与手动下单接口。
type Router struct {
	machine *execution.Machine
	db      store.Store
	catalog *instrument.Catalog
	stats   func() market.SourceStats
}

func NewRouter(machine *execution.Machine, db store.Store, catalog *instrument.Catalog, stats func() market.SourceStats) *Router {
	return &Router{machine: machine, db: db, catalog: catalog, stats: stats}
}

// Register 将控制面路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/executions", r.handleListExecutions)
	group.GET("/executions/:key", r.handleExecutionDetail)
	if r.machine != nil {
		group.POST("/orders/manual", r.handleManualOrder)
	}
	if r.stats != nil {
		group.GET("/market/stats", r.handleMarketStats)
	}
}

func (r *Router) handleListExecutions(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	recs, err := r.db.Executions().ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, executionJSON(rec))
	}
	c.JSON(http.StatusOK, gin.H{"executions": out})
}

func (r *Router) handleExecutionDetail(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	rec, err := r.db.Executions().FindByKey(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	evs, err := r.db.Events().ListByKey(c.Request.Context(), key, 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	events := make([]gin.H, 0, len(evs))
	for _, ev := range evs {
		var details any
		if len(ev.Details) > 0 {
			_ = json.Unmarshal(ev.Details, &details)
		}
		events = append(events, gin.H{
			"type":      ev.Type,
			"level":     ev.Level,
			"message":   ev.Message,
			"details":   details,
			"timestamp": ev.Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{"execution": executionJSON(*rec), "events": events})
}

// handleManualOrder 接收人工开仓请求：先过 JSON Schema 形状校验，
// 再折成普通意图走同一条状态机管线，幂等键规则与策略意图一致。
func (r *Router) handleManualOrder(c *gin.Context) {
	var req manualOrderRequest
	if err := decodeManualOrder(c.Request.Body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Instrument))
	tickSize := 0.0
	if r.catalog != nil {
		if spec, ok := r.catalog.Lookup(symbol); ok {
			tickSize = spec.TickSize
		}
	}
	signalAt := time.Now().UTC().Truncate(time.Second)
	if req.SignalAt > 0 {
		signalAt = time.Unix(req.SignalAt, 0).UTC()
	}
	intent := strategy.Intent{
		Instrument:      symbol,
		Side:            strategy.Side(req.Side),
		Contracts:       req.Contracts,
		StopPrice:       req.StopPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		StopTicks:       req.StopTicks,
		TakeProfitTicks: req.TakeProfitTicks,
		RiskUSDPlanned:  req.RiskUSD,
		StrategyID:      "manual",
		SignalTimestamp: signalAt,
		EntryTimestamp:  time.Now().UTC(),
	}
	key, created, err := r.machine.SubmitIntent(c.Request.Context(), intent, tickSize)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "execution_key": key})
		return
	}
	status := http.StatusCreated
	if !created {
		// 同键重复提交：返回已存在的执行，不产生第二笔
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"execution_key": key, "created": created})
}

func (r *Router) handleMarketStats(c *gin.Context) {
	st := r.stats()
	c.JSON(http.StatusOK, gin.H{
		"connected":  st.Connected,
		"tick_count": st.TickCount,
		"drop_count": st.DropCount,
		"reconnects": st.Reconnects,
	})
}

func executionJSON(rec storeExecution) gin.H {
	return gin.H{
		"execution_key":     rec.ExecutionKey,
		"user_id":           rec.UserID,
		"instrument":        rec.Instrument,
		"side":              rec.Side,
		"contracts":         rec.Contracts,
		"stop_price":        rec.StopPrice,
		"take_profit_price": rec.TakeProfitPrice,
		"status":            rec.Status.String(),
		"entry_order_id":    rec.EntryOrderID,
		"error":             rec.Error,
		"strategy_id":       rec.StrategyID,
		"signal_at":         rec.SignalUnix,
		"updated_at":        rec.UpdatedAtUnix,
	}
}

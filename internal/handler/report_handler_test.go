package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleet-bridge/internal/handler"
	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/pnl"
	"github.com/fleet-bridge/internal/queue"
	"github.com/fleet-bridge/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticLedger serves canned open positions and realized sums
type staticLedger struct {
	open     []models.Trade
	realized float64
}

func (l *staticLedger) GetOpenByExecutor(executorID string) ([]models.Trade, error) {
	return l.open, nil
}

func (l *staticLedger) RealizedPnLSince(executorID string, since time.Time) (float64, error) {
	return l.realized, nil
}

func passthrough(c *gin.Context) { c.Next() }

func newReportRouter(ledger *staticLedger) (*gin.Engine, *queue.RetryQueue[models.TradeCommand]) {
	engine := pnl.NewEngine("USD", 100)
	engine.RegisterSymbol(pnl.SymbolInfo{
		Symbol:         "EURUSD",
		Digits:         5,
		ContractSize:   100000,
		ProfitCurrency: "USD",
	})

	q := queue.New[models.TradeCommand](0)
	h := handler.NewReportHandler(service.NewReportService(ledger, engine), q)

	router := gin.New()
	v1 := router.Group("/api/v1")
	h.RegisterRoutes(v1, passthrough)
	return router, q
}

func TestPnLReportEndpoint(t *testing.T) {
	ledger := &staticLedger{
		open: []models.Trade{
			{
				Ticket:    1,
				Symbol:    "EURUSD",
				Type:      models.TradeTypeBuy,
				Lots:      1.0,
				OpenPrice: 1.1000,
				OpenTime:  time.Now().Add(-time.Hour),
			},
		},
	}
	router, _ := newReportRouter(ledger)

	body, _ := json.Marshal(map[string]interface{}{
		"prices": map[string]float64{"EURUSD": 1.1050},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executors/e1/pnl", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int           `json:"code"`
		Data pnl.PnLReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	require.Len(t, resp.Data.Positions, 1)
	assert.InDelta(t, 500.0, resp.Data.TotalPnL, 1e-6)
}

func TestThresholdsEndpoint(t *testing.T) {
	ledger := &staticLedger{
		open: []models.Trade{
			{
				Ticket:    1,
				Symbol:    "EURUSD",
				Type:      models.TradeTypeBuy,
				Lots:      1.0,
				OpenPrice: 1.1000,
				OpenTime:  time.Now(),
			},
		},
	}
	router, _ := newReportRouter(ledger)

	body, _ := json.Marshal(map[string]interface{}{
		"prices":           map[string]float64{"EURUSD": 1.1050},
		"profit_threshold": 20.0,
		"loss_threshold":   10.0,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executors/e1/pnl/thresholds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int                 `json:"code"`
		Data pnl.ThresholdResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// 500 profit on 1100 margin is over the 20% threshold
	assert.True(t, resp.Data.ProfitReached)
	assert.False(t, resp.Data.LossReached)
}

func TestThresholdsEndpointRejectsMissingLimits(t *testing.T) {
	router, _ := newReportRouter(&staticLedger{})

	body, _ := json.Marshal(map[string]interface{}{
		"prices": map[string]float64{},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executors/e1/pnl/thresholds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRealizedEndpoint(t *testing.T) {
	router, _ := newReportRouter(&staticLedger{realized: 123.45})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executors/e1/pnl/realized", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.RealizedPnL `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 123.45, resp.Data.Daily, 1e-9)
	assert.InDelta(t, 123.45, resp.Data.Monthly, 1e-9)
}

func TestQueueStatsEndpoint(t *testing.T) {
	router, q := newReportRouter(&staticLedger{})
	_, err := q.Enqueue(models.TradeCommand{ID: "c1"}, int(models.PriorityHigh), 3)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data queue.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Size)
	assert.Equal(t, 1, resp.Data.ByPriority[int(models.PriorityHigh)])
}

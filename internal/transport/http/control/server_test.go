package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tickflow/internal/execution"
	"tickflow/internal/gateway"
	"tickflow/internal/instrument"
	"tickflow/internal/store"
	"tickflow/internal/store/gormstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptAllBroker 接受一切订单，控制面测试不关心场馆细节。
type acceptAllBroker struct{}

func (acceptAllBroker) Name() string                    { return "accept" }
func (acceptAllBroker) Connect(context.Context) error   { return nil }
func (acceptAllBroker) Authorize(context.Context) error { return nil }
func (acceptAllBroker) Disconnect() error               { return nil }
func (acceptAllBroker) StartKeepAlive(context.Context)  {}
func (acceptAllBroker) StopKeepAlive()                  {}

func (acceptAllBroker) Capabilities() gateway.Capabilities {
	return gateway.Capabilities{SupportsBracketInSingleCall: true}
}

func (acceptAllBroker) PlaceBracketOrder(ctx context.Context, plan gateway.BracketPlan) (*gateway.BracketResult, error) {
	return &gateway.BracketResult{EntryOrderID: "E1", StopOrderID: "S1", TakeProfitOrderID: "T1"}, nil
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	db, err := gormstore.NewGormStore(filepath.Join(t.TempDir(), "tickflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog := instrument.NewCatalog()
	machine := execution.NewMachine(db, acceptAllBroker{}, nil, "u1", 2*time.Second)
	srv, err := NewServer(ServerConfig{
		Addr:    ":0",
		Machine: machine,
		Store:   db,
		Catalog: catalog,
	})
	require.NoError(t, err)
	return srv, db
}

func postJSON(t *testing.T, srv *Server, path string, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

const validManualOrder = `{
	"instrument": "MES",
	"side": "buy",
	"contracts": 1,
	"stop_price": 4995,
	"take_profit_price": 5015,
	"stop_ticks": 20,
	"take_profit_ticks": 60,
	"signal_at": 1750000000
}`

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestManualOrderCreatesExecution(t *testing.T) {
	srv, db := newTestServer(t)
	w := postJSON(t, srv, "/api/orders/manual", validManualOrder)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ExecutionKey string `json:"execution_key"`
		Created      bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Created)

	rec, err := db.Executions().FindByKey(context.Background(), resp.ExecutionKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "manual", rec.StrategyID)
	assert.Equal(t, "MES", rec.Instrument)
}

func TestManualOrderDuplicateIsSingleExecution(t *testing.T) {
	srv, db := newTestServer(t)
	w1 := postJSON(t, srv, "/api/orders/manual", validManualOrder)
	require.Equal(t, http.StatusCreated, w1.Code)
	// 相同字段与 signal_at：同一把执行键，第二次是 no-op
	w2 := postJSON(t, srv, "/api/orders/manual", validManualOrder)
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())

	recs, err := db.Executions().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestManualOrderShapeRejected(t *testing.T) {
	srv, db := newTestServer(t)
	cases := []string{
		`{"instrument":"MES","side":"hold","contracts":1,"stop_price":1,"take_profit_price":2,"stop_ticks":1,"take_profit_ticks":1}`,
		`{"instrument":"MES","side":"buy","contracts":0,"stop_price":1,"take_profit_price":2,"stop_ticks":1,"take_profit_ticks":1}`,
		`{"side":"buy","contracts":1,"stop_price":1,"take_profit_price":2,"stop_ticks":1,"take_profit_ticks":1}`,
		`not json`,
	}
	for _, payload := range cases {
		w := postJSON(t, srv, "/api/orders/manual", payload)
		assert.Equal(t, http.StatusBadRequest, w.Code, payload)
	}
	recs, err := db.Executions().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recs, "形状不合法的请求不该产生执行记录")
}

func TestListAndDetailExecutions(t *testing.T) {
	srv, _ := newTestServer(t)
	w := postJSON(t, srv, "/api/orders/manual", validManualOrder)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		ExecutionKey string `json:"execution_key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	listReq := httptest.NewRequest(http.MethodGet, "/api/executions", nil)
	lw := httptest.NewRecorder()
	srv.Handler().ServeHTTP(lw, listReq)
	require.Equal(t, http.StatusOK, lw.Code)
	assert.Contains(t, lw.Body.String(), resp.ExecutionKey)

	detailReq := httptest.NewRequest(http.MethodGet, "/api/executions/"+resp.ExecutionKey, nil)
	dw := httptest.NewRecorder()
	srv.Handler().ServeHTTP(dw, detailReq)
	require.Equal(t, http.StatusOK, dw.Code)
	assert.Contains(t, dw.Body.String(), "BRACKET_SUBMITTED")
	assert.Contains(t, dw.Body.String(), "events")
}

func TestExecutionDetailNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/executions/deadbeef", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyramidbot/internal/domain"
	"pyramidbot/internal/engine"
	"pyramidbot/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, text string) error { return nil }

// stubExchange satisfies the exchange port with fixed happy-path answers;
// HTTP-level tests only care that the sequence ran.
type stubExchange struct{}

func (stubExchange) GetAccountBalance(ctx context.Context, asset string) (float64, error) {
	return 1000, nil
}

func (stubExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	return 0.0682, nil
}

func (stubExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }

func (stubExchange) GetOpenOrders(ctx context.Context, symbol string) ([]ports.OpenOrder, error) {
	return nil, nil
}

func (stubExchange) GetPositionRisk(ctx context.Context, symbol string, side domain.PositionSide) (*ports.PositionRisk, error) {
	return &ports.PositionRisk{
		Symbol: symbol, PositionSide: side,
		PositionAmt: 1656.8, EntryPrice: 0.0682, LiquidationPrice: 0.05,
	}, nil
}

func (stubExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, positionSide domain.PositionSide, quantity string) (*ports.OrderResponse, error) {
	return &ports.OrderResponse{OrderID: 1, Symbol: symbol, Status: "FILLED", ExecutedQty: 1656.8}, nil
}

func (stubExchange) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, positionSide domain.PositionSide, quantity, price string) (*ports.OrderResponse, error) {
	return &ports.OrderResponse{OrderID: 2, Symbol: symbol, Status: "NEW"}, nil
}

func (stubExchange) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, positionSide domain.PositionSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	return &ports.OrderResponse{OrderID: 3, Symbol: symbol, Status: "NEW"}, nil
}

func (stubExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	return nil, ports.ErrOrderNotFound
}

type stubFactory struct {
	err error
}

func (f *stubFactory) NewClient(apiKey, secretKey string) (ports.ExchangeClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return stubExchange{}, nil
}

type memStore struct {
	sizes  map[string]float64
	status map[string]string
	prices map[string][]float64
}

func newMemStore() *memStore {
	return &memStore{sizes: map[string]float64{}, status: map[string]string{}, prices: map[string][]float64{}}
}

func (m *memStore) OrderSize(ctx context.Context, ns, asset string) (float64, error) {
	v, ok := m.sizes[ns+asset]
	if !ok {
		return 0, ports.ErrNotFound
	}
	return v, nil
}

func (m *memStore) SaveOrderSize(ctx context.Context, ns, asset string, size float64) error {
	m.sizes[ns+asset] = size
	return nil
}

func (m *memStore) DeleteOrderSize(ctx context.Context, ns, asset string) error {
	delete(m.sizes, ns+asset)
	return nil
}

func (m *memStore) Status(ctx context.Context, ns, asset string) (string, error) {
	v, ok := m.status[ns+asset]
	if !ok {
		return "", ports.ErrNotFound
	}
	return v, nil
}

func (m *memStore) SaveStatus(ctx context.Context, ns, asset, status string) error {
	m.status[ns+asset] = status
	return nil
}

func (m *memStore) DeleteStatus(ctx context.Context, ns, asset string) error {
	delete(m.status, ns+asset)
	return nil
}

func (m *memStore) PurchasePrices(ctx context.Context, ns, asset string) ([]float64, error) {
	return m.prices[ns+asset], nil
}

func (m *memStore) AppendPurchasePrice(ctx context.Context, ns, asset string, price float64) error {
	m.prices[ns+asset] = append(m.prices[ns+asset], price)
	return nil
}

func (m *memStore) DeletePurchasePrices(ctx context.Context, ns, asset string) error {
	delete(m.prices, ns+asset)
	return nil
}

func (m *memStore) SaveAlarmCount(ctx context.Context, ns, asset string, count int) error { return nil }

func newTestServer(t *testing.T, factory ports.ExchangeClientFactory) *Server {
	t.Helper()
	eng, err := engine.New(engine.Config{QuoteAsset: "USDT"}, newMemStore(), noopNotifier{}, noopLogger{})
	require.NoError(t, err)
	srv, err := New(eng, factory, noopLogger{})
	require.NoError(t, err)
	return srv
}

func postSignal(t *testing.T, srv *Server, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, "/signal", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleSignal_FullResult(t *testing.T) {
	srv := newTestServer(t, &stubFactory{})

	w := postSignal(t, srv, domain.Signal{
		APIKey: "k", SecretKey: "s",
		Symbol: "STRK-USDT", SellPct: 2.5, Price: 0.0682,
		Pyramiding: 8, Safety: 96, Namespace: "tenant1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var res domain.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "STRK-USDT", res.Symbol)
	assert.Equal(t, domain.CycleEmpty, res.CycleState)
	// (positionValue 1656.8*0.0682 + balance 1000 - safety 96) / pyramiding 8
	assert.InDelta(t, 127.12422, res.Notional, 1e-6)
	assert.NotEmpty(t, res.Trace)
}

func TestHandleSignal_MissingCredentials(t *testing.T) {
	srv := newTestServer(t, &stubFactory{})

	w := postSignal(t, srv, domain.Signal{Symbol: "STRK-USDT"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSignal_MalformedBody(t *testing.T) {
	srv := newTestServer(t, &stubFactory{})

	w := postSignal(t, srv, `{"symbol": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSignal_FactoryFailure(t *testing.T) {
	srv := newTestServer(t, &stubFactory{err: fmt.Errorf("no route to exchange")})

	w := postSignal(t, srv, domain.Signal{APIKey: "k", SecretKey: "s", Symbol: "STRK-USDT"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubFactory{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubFactory{})

	// A processed signal guarantees the counters have samples to expose.
	postSignal(t, srv, domain.Signal{APIKey: "k", SecretKey: "s", Symbol: "STRK-USDT", Pyramiding: 8})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bot_signals_total")
}

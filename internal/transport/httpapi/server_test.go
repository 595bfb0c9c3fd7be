package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/pos/internal/broadcast"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
	"github.com/vladislavdragonenkov/pos/internal/service/report"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
	"github.com/vladislavdragonenkov/pos/internal/transport/httpapi"
)

var now = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// dailyArchive: дневные файлы прошлых дней.
type dailyArchive map[string][]domain.Order

func (a dailyArchive) ReadDaily(date string) ([]domain.Order, error) {
	return a[date], nil
}

func (a dailyArchive) DailyDates() ([]string, error) {
	dates := make([]string, 0, len(a))
	for date := range a {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

func rejected(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "pos_checkout_rejected_total" {
			return family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

type APISuite struct {
	suite.Suite

	store     *memory.OrderStore
	hub       *broadcast.Hub
	persisted chan domain.Order
	server    *httptest.Server
	handler   http.Handler
	staticDir string
	registry  *prometheus.Registry
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("component", "test")

	s.store = memory.NewOrderStore(50, domain.DefaultOrderNumberBase)
	s.hub = broadcast.NewHub(broadcast.WithLogger(entry))
	s.persisted = make(chan domain.Order, 16)
	clock := func() time.Time { return now }
	s.registry = prometheus.NewRegistry()
	earlier := now.AddDate(0, 0, -2)
	archive := dailyArchive{
		"2026-10-17": {
			{OrderNumber: 1001, Total: 10, Timestamp: earlier, Status: domain.OrderStatusPending},
			{OrderNumber: 1002, Total: 5.5, Timestamp: earlier.Add(time.Minute), Status: domain.OrderStatusPending},
		},
		"2026-10-18": nil,
	}

	checkoutSvc := checkout.NewService(
		s.store,
		domain.PersisterFunc(func(order domain.Order) { s.persisted <- order }),
		s.hub,
		entry,
		checkout.WithClock(clock),
		checkout.WithMetrics(metrics.NewPOSMetricsWithRegisterer(s.registry)),
	)
	reports := report.NewService(s.store, report.WithClock(clock), report.WithArchive(archive))

	s.staticDir = s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(s.staticDir, "index.html"), []byte("<h1>menu</h1>"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.staticDir, "kitchen.html"), []byte("<h1>kitchen</h1>"), 0o644))

	api := httpapi.NewServer(checkoutSvc, reports,
		httpapi.WithLogger(entry),
		httpapi.WithStaticDir(s.staticDir),
	)
	s.handler = api.Handler()
	s.server = httptest.NewServer(s.handler)
}

func (s *APISuite) TearDownTest() {
	s.hub.Close()
	s.server.Close()
}

func (s *APISuite) post(path, body string) (*http.Response, map[string]any) {
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	return resp, decodeBody(s.T(), resp)
}

func (s *APISuite) get(path string) (*http.Response, map[string]any) {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	return resp, decodeBody(s.T(), resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (s *APISuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *APISuite) readWS(conn *websocket.Conn) wsMessage {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var msg wsMessage
	s.Require().NoError(conn.ReadJSON(&msg))
	return msg
}

func (s *APISuite) TestCheckout_Success() {
	resp, body := s.post("/checkout", `{"items":[{"name":"Burger","price":12.5,"quantity":1}],"total":12.50}`)

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("application/json", resp.Header.Get("Content-Type"))
	s.Equal(true, body["success"])
	s.Equal(float64(1001), body["orderNumber"])
	s.Equal("Order processed successfully", body["message"])

	select {
	case order := <-s.persisted:
		s.Equal(int64(1001), order.OrderNumber)
		s.Equal(domain.OrderStatusPending, order.Status)
	case <-time.After(time.Second):
		s.Fail("order was not handed to the persister")
	}
}

func (s *APISuite) TestCheckout_BothPathsShareCounter() {
	_, first := s.post("/checkout", `{"total": 1}`)
	_, second := s.post("/api/checkout", `{"total": 2}`)

	s.Equal(float64(1001), first["orderNumber"])
	s.Equal(float64(1002), second["orderNumber"])
}

func (s *APISuite) TestCheckout_InvalidPayload() {
	payloads := []string{`{"items":[]}`, `{"total":"abc"}`, `{"total":-5}`, `not json`, `{"total":1} garbage`}
	for _, payload := range payloads {
		resp, body := s.post("/checkout", payload)
		s.Equal(http.StatusBadRequest, resp.StatusCode, payload)
		s.Equal(false, body["success"])
		s.Equal("Error processing order", body["message"])
		s.NotContains(body, "orderNumber")
	}

	s.Equal(0, s.store.Len())
	s.Equal(float64(len(payloads)), rejected(s.T(), s.registry))

	_, body := s.post("/checkout", `{"total": 1}`)
	s.Equal(float64(1001), body["orderNumber"])
}

func (s *APISuite) TestCheckout_AcceptsOpaqueItems() {
	payloads := []string{
		`{"total":8,"items":[{"name":"Rice","price":10,"quantity":1},{"name":"Discount","price":-2,"quantity":1}]}`,
		`{"total":12.5,"items":[{"name":"Rice","price":"12.50","quantity":1}]}`,
		`{"total":3,"items":[{"name":"Cheese","price":2,"quantity":1.5}]}`,
	}
	for _, payload := range payloads {
		resp, body := s.post("/checkout", payload)
		s.Equal(http.StatusOK, resp.StatusCode, payload)
		s.Equal(true, body["success"], payload)
	}
	s.Equal(len(payloads), s.store.Len())
	s.Equal(0.0, rejected(s.T(), s.registry))
}

func (s *APISuite) TestCheckout_KeepsClientFields() {
	resp, _ := s.post("/api/checkout", `{"total":12.5,"customerName":"Ann","paymentMethod":"cash",`+
		`"items":[{"name":"Rice","price":12.5,"quantity":1,"notes":"extra spicy"}]}`)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	_, body := s.get("/api/orders/1001")
	order := body["order"].(map[string]any)
	s.Equal("Ann", order["customerName"])
	s.Equal("cash", order["paymentMethod"])
	s.Equal("extra spicy", order["items"].([]any)[0].(map[string]any)["notes"])

	select {
	case persisted := <-s.persisted:
		raw, err := json.Marshal(persisted)
		s.Require().NoError(err)
		s.Contains(string(raw), `"customerName":"Ann"`)
	case <-time.After(time.Second):
		s.Fail("order was not handed to the persister")
	}
}

func (s *APISuite) TestCheckout_RejectsReusedOrderNumber() {
	_, body := s.post("/checkout", `{"total":1,"orderNumber":1002}`)
	s.Equal(float64(1002), body["orderNumber"])

	resp, body := s.post("/checkout", `{"total":1,"orderNumber":1002}`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(false, body["success"])

	_, body = s.post("/checkout", `{"total":1}`)
	s.Equal(float64(1003), body["orderNumber"])
	s.Equal(1.0, rejected(s.T(), s.registry))
}

func (s *APISuite) TestCheckout_BodyTooLarge() {
	payload := `{"total": 1, "items": [` + strings.Repeat(`{"name":"x","price":1,"quantity":1},`, 40000) + `{"name":"x","price":1,"quantity":1}]}`
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewBufferString(payload)))

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(0, s.store.Len())
}

func (s *APISuite) TestSalesReport_Today() {
	s.post("/checkout", `{"total": 12.50}`)
	s.post("/checkout", `{"total": 7.25}`)

	for _, path := range []string{"/sales-report", "/api/sales-report"} {
		resp, body := s.get(path)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal("2026-10-19", body["date"])
		s.Equal(float64(2), body["totalOrders"])
		s.Equal("19.75", body["totalRevenue"])
		s.Equal(9.88, body["averageOrder"])
		s.Len(body["orders"], 2)
	}
}

func (s *APISuite) TestSalesReport_ByDate() {
	s.post("/checkout", `{"total": 3}`)

	resp, body := s.get("/sales-report?date=2026-10-18")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(float64(0), body["totalOrders"])
	s.Equal("0.00", body["totalRevenue"])
	s.Equal(float64(0), body["averageOrder"])

	resp, body = s.get("/api/sales-report?date=2026-10-17")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(float64(2), body["totalOrders"])
	s.Equal("15.50", body["totalRevenue"])
	s.Equal(7.75, body["averageOrder"])
	s.Equal(float64(1002), body["orders"].([]any)[0].(map[string]any)["orderNumber"])

	resp, body = s.get("/api/sales-report?date=18-10-2026")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(false, body["success"])
}

func (s *APISuite) TestSalesReport_Dates() {
	resp, body := s.get("/api/sales-report/dates")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["success"])
	s.Equal([]any{"2026-10-17", "2026-10-18"}, body["dates"])
}

func (s *APISuite) TestOrders_ListAndFind() {
	s.post("/checkout", `{"total": 1}`)
	s.post("/checkout", `{"total": 2}`)

	resp, body := s.get("/api/orders")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["success"])
	s.Equal(float64(2), body["count"])
	orders := body["orders"].([]any)
	s.Equal(float64(1002), orders[0].(map[string]any)["orderNumber"])

	resp, body = s.get("/api/orders/1001")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(float64(1), body["order"].(map[string]any)["total"])

	resp, body = s.get("/api/orders/4242")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("Order not found", body["message"])
}

func (s *APISuite) TestClearOrders() {
	s.post("/checkout", `{"total": 1}`)
	s.post("/checkout", `{"total": 2}`)

	resp, body := s.post("/api/clear-orders", ``)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["success"])
	s.Equal("All orders cleared", body["message"])

	_, body = s.get("/api/orders")
	s.Equal(float64(0), body["count"])

	_, body = s.post("/checkout", `{"total": 3}`)
	s.Equal(float64(1001), body["orderNumber"])
}

func (s *APISuite) TestStaticPages() {
	for path, want := range map[string]string{"/": "<h1>menu</h1>", "/kitchen": "<h1>kitchen</h1>"} {
		resp, err := http.Get(s.server.URL + path)
		s.Require().NoError(err)
		page, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		s.Require().NoError(err)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal(want, string(page))
	}
}

func (s *APISuite) TestCORSPreflight() {
	req, err := http.NewRequest(http.MethodOptions, s.server.URL+"/api/checkout", nil)
	s.Require().NoError(err)
	req.Header.Set("Origin", "http://till.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()

	s.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func (s *APISuite) TestWebSocket_SnapshotThenNewOrder() {
	s.post("/checkout", `{"total": 4}`)

	conn := s.dial()
	snapshot := s.readWS(conn)
	s.Equal(broadcast.EventCurrentOrders, snapshot.Event)
	var current []domain.Order
	s.Require().NoError(json.Unmarshal(snapshot.Data, &current))
	s.Require().Len(current, 1)
	s.Equal(int64(1001), current[0].OrderNumber)

	_, body := s.post("/checkout", `{"items":[{"name":"Burger","price":12.5,"quantity":1}],"total": 12.50}`)
	s.Equal(float64(1002), body["orderNumber"])

	msg := s.readWS(conn)
	s.Equal(broadcast.EventNewOrder, msg.Event)
	var order domain.Order
	s.Require().NoError(json.Unmarshal(msg.Data, &order))
	s.Equal(int64(1002), order.OrderNumber)
	s.Equal(12.5, order.Total)
	s.Equal(domain.OrderStatusPending, order.Status)
	s.True(now.Equal(order.Timestamp))
	s.Require().Len(order.Items, 1)
	s.JSONEq(`{"name":"Burger","price":12.5,"quantity":1}`, string(order.Items[0]))
}

func (s *APISuite) TestWebSocket_ClearSendsEmptySnapshot() {
	conn := s.dial()
	s.readWS(conn)

	s.post("/api/clear-orders", ``)

	msg := s.readWS(conn)
	s.Equal(broadcast.EventCurrentOrders, msg.Event)
	s.JSONEq(`[]`, string(msg.Data))
}

func (s *APISuite) TestWebSocket_ClosedOnHubShutdown() {
	conn := s.dial()
	s.readWS(conn)
	s.Eventually(func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	s.hub.Close()

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	s.Require().Error(err)
	s.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func (s *APISuite) TestWebSocket_DisconnectUnsubscribes() {
	conn := s.dial()
	s.readWS(conn)
	s.Eventually(func() bool { return s.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	s.Require().NoError(conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	s.Require().NoError(conn.Close())

	s.Eventually(func() bool { return s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStaticPages_WithoutStaticDir(t *testing.T) {
	store := memory.NewOrderStore(10, domain.DefaultOrderNumberBase)
	hub := broadcast.NewHub()
	defer hub.Close()
	api := httpapi.NewServer(
		checkout.NewService(store, nil, hub, nil),
		report.NewService(store),
	)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kitchen", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	store := memory.NewOrderStore(10, domain.DefaultOrderNumberBase)
	hub := broadcast.NewHub()
	defer hub.Close()
	api := httpapi.NewServer(
		checkout.NewService(store, nil, hub, nil),
		report.NewService(store),
		httpapi.WithAllowedOrigins([]string{"http://kitchen.local"}),
	)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.local"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, 0, hub.Count())

	header = http.Header{"Origin": []string{"http://kitchen.local"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
}

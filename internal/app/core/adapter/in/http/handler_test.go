package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	clock  time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{t: t, clock: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	store, err := memory.NewMutexAccountStore(nil, nil, memory.WithClock(func() time.Time { return ts.clock }))
	require.NoError(t, err)
	accounts := usecase.NewAccountService(store)
	core := usecase.NewCoreUseCase(accounts, usecase.NewTransferCoordinator(accounts))
	ts.router = NewRouter(core, WithLogger(zaptest.NewLogger(t)), WithRegistry(prometheus.NewRegistry()))
	return ts
}

func (ts *testServer) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	ts.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(owner, balance string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/accounts?cf="+owner, balance)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return rec.Header().Get("Location")
}

func TestAccountScenario(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create("RSSMRA80A01H501U", "100")
	assert.Equal(t, "/accounts/1", a)

	rec := ts.do(http.MethodPost, a+"/withdraws", "30")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "70", rec.Body.String())

	rec = ts.do(http.MethodPost, a+"/withdraws", "100")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodGet, a+"/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "70", rec.Body.String())
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))
	assert.Equal(t, "Wed, 01 May 2024 10:00:00 GMT", rec.Header().Get("Last-Modified"))

	b := ts.create("VRDGPP80A01H501U", "")
	rec = ts.do(http.MethodPost, "/accounts/transfers?source=1&destination=2", "50")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tr transferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, domain.TransferCommitted.String(), tr.State)

	assert.Equal(t, "20", ts.do(http.MethodGet, a+"/balance", "").Body.String())
	assert.Equal(t, "50", ts.do(http.MethodGet, b+"/balance", "").Body.String())
}

func TestTransferToMissingAccountRestoresSource(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create("owner", "100")

	rec := ts.do(http.MethodPost, "/accounts/transfers?source=1&destination=99", "50")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var tr transferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, domain.TransferRolledBack.String(), tr.State)
	assert.NotEmpty(t, tr.Error)

	assert.Equal(t, "100", ts.do(http.MethodGet, a+"/balance", "").Body.String())
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create("owner", "10")

	cases := []struct {
		name, method, target, body string
		code                       int
	}{
		{"missing owner", http.MethodPost, "/accounts", "1", http.StatusBadRequest},
		{"negative initial balance", http.MethodPost, "/accounts?cf=x", "-1", http.StatusBadRequest},
		{"not a number", http.MethodPost, a + "/deposits", "ten", http.StatusBadRequest},
		{"zero deposit", http.MethodPost, a + "/deposits", "0", http.StatusBadRequest},
		{"empty withdraw", http.MethodPost, a + "/withdraws", "", http.StatusBadRequest},
		{"too many decimals", http.MethodPost, a + "/deposits", "0.00001", http.StatusBadRequest},
		{"too long", http.MethodPost, a + "/deposits", strings.Repeat("1", 100), http.StatusBadRequest},
		{"unknown account", http.MethodGet, "/accounts/404/balance", "", http.StatusNotFound},
		{"transfer missing source", http.MethodPost, "/accounts/transfers?destination=1", "1", http.StatusBadRequest},
		{"transfer to self", http.MethodPost, "/accounts/transfers?source=1&destination=1", "1", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, a + "/balance", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(tc.method, tc.target, tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestConditionalSetBalance(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create("owner", "100")
	first := ts.do(http.MethodGet, a+"/balance", "")

	// 別人在兩秒後存款
	ts.clock = ts.clock.Add(2 * time.Second)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, a+"/deposits", "1").Code)

	rec := ts.do(http.MethodPut, a+"/balance", "500")
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec = ts.do(http.MethodPut, a+"/balance", "500", "If-Unmodified-Since", first.Header().Get("Last-Modified"))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	rec = ts.do(http.MethodPut, a+"/balance", "500", "If-Match", first.Header().Get("ETag"))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "101", ts.do(http.MethodGet, a+"/balance", "").Body.String())

	latest := ts.do(http.MethodGet, a+"/balance", "")
	rec = ts.do(http.MethodPut, a+"/balance", "500", "If-Unmodified-Since", latest.Header().Get("Last-Modified"))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, `"3"`, rec.Header().Get("ETag"))

	rec = ts.do(http.MethodPut, a+"/balance", "7.25", "If-Match", `"3"`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "7.25", ts.do(http.MethodGet, a+"/balance", "").Body.String())

	rec = ts.do(http.MethodPut, a+"/balance", "-1", "If-Match", `"4"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPut, a+"/balance", "1", "If-Match", "*")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPut, a+"/balance", "1", "If-Unmodified-Since", "yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "").Code)
	ts.create("owner", "1")

	rec := ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ledger_http_requests_total{endpoint="/accounts",method="POST",status="Created"} 1`)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(domain.ErrContention))
	assert.Equal(t, http.StatusInternalServerError, statusOf(domain.ErrInconsistent))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
	assert.Equal(t, http.StatusPreconditionRequired, statusOf(errPreconditionRequired))
}

func TestParseETag(t *testing.T) {
	v, err := parseETag(` "12" `)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)

	for _, bad := range []string{`12`, `W/"12"`, `"abc"`, `"0"`, `"`} {
		_, err := parseETag(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, bad)
	}
}

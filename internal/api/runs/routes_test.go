package runs

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/storage/farm/memory"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

func newTestMux(t *testing.T) (*http.ServeMux, *memory.RunStore) {
	t.Helper()
	store := memory.NewRunStore()
	mux := http.NewServeMux()
	Routes(mux, Config{Log: logger.Noop(), Repo: store})
	return mux, store
}

func serve(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetRun(t *testing.T) {
	mux, store := newTestMux(t)

	report := farm.NewRunReport(farm.PolicyDynamic, farm.QueueOrderLIFO, 2, 1, time.Now())
	report.RecordAssignment(2)
	report.RecordResult(4)
	require.NoError(t, store.Save(context.Background(), report))

	rec := serve(mux, "/v1/runs/"+report.RunID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got farm.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, []float64{4}, got.Results)
	assert.Equal(t, map[farm.WorkerID]int{2: 1}, got.Assignments)
}

func TestGetRunWithNonFiniteResults(t *testing.T) {
	mux, store := newTestMux(t)

	report := farm.NewRunReport(farm.PolicyDynamic, farm.QueueOrderLIFO, 1, 2, time.Now())
	report.RecordResult(math.Inf(1))
	report.RecordResult(math.NaN())
	require.NoError(t, store.Save(context.Background(), report))

	rec := serve(mux, "/v1/runs/"+report.RunID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":["+Inf","NaN"]`)

	list := serve(mux, "/v1/runs")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), `"+Inf"`)
}

func TestGetRunErrors(t *testing.T) {
	mux, _ := newTestMux(t)

	assert.Equal(t, http.StatusBadRequest, serve(mux, "/v1/runs/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, serve(mux, "/v1/runs/"+uuid.NewString()).Code)
}

func TestListRuns(t *testing.T) {
	mux, store := newTestMux(t)

	rec := serve(mux, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())

	for i := 0; i < 3; i++ {
		r := farm.NewRunReport(farm.PolicyStatic, farm.QueueOrderFIFO, 1, 0, time.Now().Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Save(context.Background(), r))
	}

	rec = serve(mux, "/v1/runs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Runs, 2)

	assert.Equal(t, http.StatusBadRequest, serve(mux, "/v1/runs?limit=0").Code)
}

type countingMetrics struct {
	requests map[string]int
	observed int
}

func (c *countingMetrics) IncRequestsTotal(_ context.Context, method, route string, status int) {
	c.requests[method+" "+route+" "+http.StatusText(status)]++
}

func (c *countingMetrics) ObserveRequestDuration(context.Context, string, string, time.Duration) {
	c.observed++
}

func TestRoutesRecordMetrics(t *testing.T) {
	m := &countingMetrics{requests: map[string]int{}}
	mux := http.NewServeMux()
	Routes(mux, Config{Log: logger.Noop(), Repo: memory.NewRunStore(), Metrics: m})

	serve(mux, "/v1/runs")
	serve(mux, "/v1/runs/"+uuid.NewString())

	assert.Equal(t, 1, m.requests["GET /runs OK"])
	assert.Equal(t, 1, m.requests["GET /runs/{id} Not Found"])
	assert.Equal(t, 2, m.observed)
}

func TestNewMetricsOnNoopProvider(t *testing.T) {
	m, err := NewMetrics(noopmetric.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.IncRequestsTotal(context.Background(), http.MethodGet, "/runs", http.StatusOK)
		m.ObserveRequestDuration(context.Background(), http.MethodGet, "/runs", time.Millisecond)
	})
}

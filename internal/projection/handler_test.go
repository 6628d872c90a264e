package projection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	rollup "github.com/aevon-lab/aevon-rollup/internal/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage/memory"
)

func newRouter(t *testing.T, chains ...*rollup.Chain) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := NewService(memory.NewStore(), chains)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func TestService_Handlers_StatusMapping(t *testing.T) {
	now := ms(base)
	ready := newChain(t, memory.NewStore(), now, "sec...hour")
	start := now.Format(time.RFC3339)
	end := now.Add(time.Hour).Format(time.RFC3339)

	tests := []struct {
		name           string
		method         string
		url            string
		expectedStatus int
	}{
		{name: "list", method: http.MethodGet, url: "/v1/aggregations", expectedStatus: http.StatusOK},
		{name: "query ok", method: http.MethodGet, url: "/v1/aggregations/stockAggregation?granularity=minutes&start=" + start + "&end=" + end, expectedStatus: http.StatusOK},
		{name: "query missing start", method: http.MethodGet, url: "/v1/aggregations/stockAggregation?granularity=minutes", expectedStatus: http.StatusBadRequest},
		{name: "query bad time", method: http.MethodGet, url: "/v1/aggregations/stockAggregation?start=yesterday", expectedStatus: http.StatusBadRequest},
		{name: "query end before start", method: http.MethodGet, url: "/v1/aggregations/stockAggregation?start=" + end + "&end=" + start, expectedStatus: http.StatusBadRequest},
		{name: "query unmaintained level", method: http.MethodGet, url: "/v1/aggregations/stockAggregation?granularity=days&start=" + start, expectedStatus: http.StatusBadRequest},
		{name: "query unknown aggregation", method: http.MethodGet, url: "/v1/aggregations/missing?start=" + start, expectedStatus: http.StatusNotFound},
		{name: "flush", method: http.MethodPost, url: "/v1/aggregations/stockAggregation/flush", expectedStatus: http.StatusOK},
		{name: "flush unknown", method: http.MethodPost, url: "/v1/aggregations/missing/flush", expectedStatus: http.StatusNotFound},
		{name: "purge", method: http.MethodDelete, url: "/v1/aggregations/stockAggregation/buckets?granularity=seconds&before=" + start, expectedStatus: http.StatusOK},
		{name: "purge missing before", method: http.MethodDelete, url: "/v1/aggregations/stockAggregation/buckets?granularity=seconds", expectedStatus: http.StatusBadRequest},
		{name: "purge bad granularity", method: http.MethodDelete, url: "/v1/aggregations/stockAggregation/buckets?granularity=weeks&before=" + start, expectedStatus: http.StatusBadRequest},
		{name: "purge unmaintained level", method: http.MethodDelete, url: "/v1/aggregations/stockAggregation/buckets?granularity=years&before=" + start, expectedStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(t, ready)
			req := httptest.NewRequest(tc.method, tc.url, nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != tc.expectedStatus {
				t.Logf("unexpected response body: %s", resp.Body.String())
			}
			require.Equal(t, tc.expectedStatus, resp.Code)
		})
	}
}

func TestService_Handlers_NotReady(t *testing.T) {
	pending := rollup.NewChain(stockDefinition(t, "sec...min"), memory.NewStore(), rollup.Options{})
	r := newRouter(t, pending)
	start := ms(base).Format(time.RFC3339)

	for _, tc := range []struct{ method, url string }{
		{http.MethodGet, "/v1/aggregations/stockAggregation?start=" + start},
		{http.MethodPost, "/v1/aggregations/stockAggregation/flush"},
		{http.MethodDelete, "/v1/aggregations/stockAggregation/buckets?granularity=seconds&before=" + start},
	} {
		req := httptest.NewRequest(tc.method, tc.url, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		require.Equal(t, http.StatusServiceUnavailable, resp.Code, tc.url)
	}
}

func TestService_HandleQueryAggregation_Body(t *testing.T) {
	c := newChain(t, memory.NewStore(), ms(base), "sec...hour")
	ingest(t, c, "WSO2", base, 100)
	ingest(t, c, "IBM", base, 50)
	r := newRouter(t, c)

	url := "/v1/aggregations/stockAggregation?granularity=min&group=IBM&start=" + ms(base).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, url, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var body QueryResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "MINUTES", body.Granularity)
	require.Equal(t, []string{"totalPrice", "avgPrice"}, body.Columns)
	require.Len(t, body.Values, 1)
	require.Equal(t, "IBM", body.Values[0].Group["symbol"])
	require.Equal(t, "50", body.Values[0].Values["totalPrice"].String())
	require.Equal(t, ms(base+60_000), body.Values[0].BucketEnd)
	require.True(t, body.Values[0].Open)
}

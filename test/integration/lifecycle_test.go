//go:build integration

package integration

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoreAPI_StockLifecycleAcrossRestarts(t *testing.T) {
	db := openDB(t)
	resetDatabase(t, db)

	base := time.Date(2018, 5, 8, 13, 27, 0, 0, time.UTC)
	hour := base.Truncate(time.Hour)

	h := startHarness(t, db)

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := h.client.Get(h.baseURL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	})

	t.Run("ingest and query minutes", func(t *testing.T) {
		ingestStock(t, h, base, "WSO2", 100)
		ingestStock(t, h, base.Add(time.Second), "IBM", 100)
		ingestStock(t, h, base.Add(61*time.Second), "IBM", 100)

		payload := queryAggregation(t, h, "minutes", base, base.Add(2*time.Minute))
		require.False(t, payload.Partial)
		require.Len(t, payload.Values, 3)
		require.Equal(t, "IBM", payload.Values[0].Group["symbol"])
		require.Equal(t, "WSO2", payload.Values[1].Group["symbol"])
		require.Equal(t, "IBM", payload.Values[2].Group["symbol"])
		require.Equal(t, "100", payload.Values[2].Values["totalPrice"])
	})

	h.close(t)

	// the final drain persisted every level
	require.Equal(t, 3, countRows(t, db, "SECONDS"))
	require.Equal(t, 3, countRows(t, db, "MINUTES"))
	require.Equal(t, 2, countRows(t, db, "HOURS"))
	require.Equal(t, 2, countRows(t, db, "YEARS"))

	h = startHarness(t, db)

	t.Run("recovered seconds survive restart", func(t *testing.T) {
		payload := queryAggregation(t, h, "seconds", base, base.Add(2*time.Minute))
		require.Len(t, payload.Values, 3)
	})

	t.Run("new event rolls into recovered hour", func(t *testing.T) {
		ingestStock(t, h, base.Add(62*time.Second), "WSO2", 100)

		payload := queryAggregation(t, h, "hours", hour, hour.Add(time.Hour))
		require.Len(t, payload.Values, 2)
		for _, v := range payload.Values {
			require.Equal(t, "200", v.Values["totalPrice"], v.Group["symbol"])
			require.Equal(t, "100", v.Values["avgPrice"], v.Group["symbol"])
		}
	})

	h.close(t)
	h = startHarness(t, db)
	defer h.close(t)

	t.Run("second restart does not double count", func(t *testing.T) {
		payload := queryAggregation(t, h, "years", hour, hour.Add(time.Hour))
		require.Len(t, payload.Values, 2)
		for _, v := range payload.Values {
			require.Equal(t, "200", v.Values["totalPrice"], v.Group["symbol"])
			require.Equal(t, int64(2), v.EventCount, v.Group["symbol"])
		}
	})
}

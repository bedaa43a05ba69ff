package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promServer answers instant queries: a query containing a key of values
// gets that sample, anything else an empty vector.
func promServer(t *testing.T, values map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q := r.Form.Get("query")
		result := "[]"
		for key, v := range values {
			if strings.Contains(q, key) {
				result = fmt.Sprintf(`[{"metric":{},"value":[1718000000,%q]}]`, v)
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewPrometheusClient_RequiresURL(t *testing.T) {
	_, err := NewPrometheusClient(Config{}, nil)
	assert.Error(t, err)
}

func TestClusterUtilization_NodeExporter(t *testing.T) {
	srv := promServer(t, map[string]string{
		"node_cpu_seconds_total":         "0.42",
		"node_memory_MemAvailable_bytes": "0.61",
	})
	client, err := NewPrometheusClient(Config{PrometheusURL: srv.URL}, nil)
	require.NoError(t, err)

	cpu, mem, err := client.ClusterUtilization(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.42, cpu, 1e-9)
	assert.InDelta(t, 0.61, mem, 1e-9)
}

func TestClusterUtilization_FallsBackToCAdvisor(t *testing.T) {
	srv := promServer(t, map[string]string{
		"container_cpu_usage_seconds_total":  "0.2",
		"container_memory_working_set_bytes": "0.3",
	})
	client, err := NewPrometheusClient(Config{PrometheusURL: srv.URL}, nil)
	require.NoError(t, err)

	cpu, mem, err := client.ClusterUtilization(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.2, cpu, 1e-9)
	assert.InDelta(t, 0.3, mem, 1e-9)
}

func TestClusterUtilization_NoData(t *testing.T) {
	srv := promServer(t, nil)
	client, err := NewPrometheusClient(Config{PrometheusURL: srv.URL}, nil)
	require.NoError(t, err)

	_, _, err = client.ClusterUtilization(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}

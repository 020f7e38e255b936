package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func Test_Client(t *testing.T) {
	tests := []struct {
		name string
		f    func(t *testing.T, c *Client)
	}{
		{
			name: "Counter adds values",
			f: func(t *testing.T, c *Client) {
				c.Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{}, 1)
				c.Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{}, 2)

				v := c.c.counters[metrickeys.WorkflowInstanceCreated+"|"]
				require.NotNil(t, v)
				require.Equal(t, float64(3), testutil.ToFloat64(v.WithLabelValues()))
			},
		},
		{
			name: "Tags become labels",
			f: func(t *testing.T, c *Client) {
				tc := c.WithTags(metrics.Tags{metrickeys.Backend: "sqlite"})
				tc.Counter(metrickeys.ActivityTaskProcessed, metrics.Tags{metrickeys.ActivityName: "ConvertCurrency"}, 1)

				v := c.c.counters[metrickeys.ActivityTaskProcessed+"|activity,backend"]
				require.NotNil(t, v)
				require.Equal(t, float64(1), testutil.ToFloat64(v.WithLabelValues("ConvertCurrency", "sqlite")))
			},
		},
		{
			name: "Gauge sets value",
			f: func(t *testing.T, c *Client) {
				c.Gauge(metrickeys.WorkflowInstanceCacheSize, nil, 5)
				c.Gauge(metrickeys.WorkflowInstanceCacheSize, nil, 2)

				v := c.c.gauges[metrickeys.WorkflowInstanceCacheSize+"|"]
				require.Equal(t, float64(2), testutil.ToFloat64(v.WithLabelValues()))
			},
		},
		{
			name: "Conflicting label sets are dropped",
			f: func(t *testing.T, c *Client) {
				c.Counter("loans.approved", metrics.Tags{"a": "1"}, 1)

				require.NotPanics(t, func() {
					c.Counter("loans.approved", metrics.Tags{"b": "1"}, 1)
				})

				require.Len(t, c.c.counters, 1)
			},
		},
		{
			name: "Handler exposes metrics",
			f: func(t *testing.T, c *Client) {
				c.Timing(metrickeys.WorkflowTaskDelay, metrics.Tags{}, time.Millisecond*250)
				c.Distribution(metrickeys.ActivityTaskAttempts, metrics.Tags{}, 2)

				srv := httptest.NewServer(c.Handler())
				defer srv.Close()

				res, err := http.Get(srv.URL)
				require.NoError(t, err)
				defer res.Body.Close()

				body, err := io.ReadAll(res.Body)
				require.NoError(t, err)
				require.Contains(t, string(body), "workflows_workflow_task_time_in_queue_seconds_count 1")
				require.Contains(t, string(body), "workflows_activity_task_attempts_sum 2")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f(t, New(nil))
		})
	}
}

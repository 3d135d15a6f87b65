package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	// Register should be safe to call multiple times
	Register(reg)
	Register(reg)

	IncHTTP("/telegram", 200)
	IncHTTP("/telegram", 200)
	IncHTTP("/telegram", 403)

	assert.Equal(t, 2.0, testutil.ToFloat64(httpRequests.WithLabelValues("/telegram", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("/telegram", "403")))
}

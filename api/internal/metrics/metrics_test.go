package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := New()

	c.UpstreamCall("primary", nil)
	c.UpstreamCall("retry", errors.New("boom"))
	c.Fallback("imei", true)
	c.Fallback("price", false)
	c.Request("fields", false, nil, 2*time.Second)
	c.Request("fields", true, nil, time.Millisecond)
	c.Request("fields", false, errors.New("boom"), time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.upstream.WithLabelValues("primary", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.upstream.WithLabelValues("retry", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fallbacks.WithLabelValues("imei", "recovered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fallbacks.WithLabelValues("price", "miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues("fields", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues("fields", "cached")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues("fields", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.TxStage("submit", "ok")
	m.TxStage("submit", "ok")
	m.TxStage("confirm", "timed_out")
	m.RPCError("getAccountInfo")
	m.ConfirmDuration("confirmed", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.txTotal.WithLabelValues("submit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txTotal.WithLabelValues("confirm", "timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rpcErrors.WithLabelValues("getAccountInfo")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.confirmSeconds))

	_, err = New(reg)
	assert.Error(t, err, "double registration must fail")
}

func TestMetrics_NilSafe(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	assert.NotPanics(t, func() {
		m.TxStage("sign", "ok")
		m.RPCError("x")
		m.ConfirmDuration("x", time.Second)
	})
}

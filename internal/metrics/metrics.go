package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pdaclient"

// Metrics 客户端指标。nil *Metrics 可安全调用，表示关闭指标
type Metrics struct {
	txTotal        *prometheus.CounterVec
	confirmSeconds *prometheus.HistogramVec
	rpcErrors      *prometheus.CounterVec
}

// New 在给定 Registerer 上注册指标；reg 为 nil 时返回 nil
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		txTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_total",
			Help:      "Transactions by lifecycle stage and outcome.",
		}, []string{"stage", "outcome"}),
		confirmSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirm_seconds",
			Help:      "Time spent polling for confirmation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"outcome"}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "Transport call failures by method.",
		}, []string{"method"}),
	}

	for _, c := range []prometheus.Collector{m.txTotal, m.confirmSeconds, m.rpcErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) TxStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.txTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ConfirmDuration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.confirmSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) RPCError(method string) {
	if m == nil {
		return
	}
	m.rpcErrors.WithLabelValues(method).Inc()
}

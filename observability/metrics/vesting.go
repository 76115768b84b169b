package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type VestingMetrics struct {
	operations    *prometheus.CounterVec
	claimedTotal  prometheus.Counter
	sweptTotal    prometheus.Counter
	scheduleCount prometheus.Gauge
}

var (
	vestingOnce     sync.Once
	vestingRegistry *VestingMetrics
)

func Vesting() *VestingMetrics {
	vestingOnce.Do(func() {
		vestingRegistry = &VestingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vesting_operations_total",
				Help: "Count of vesting engine operations by type and outcome.",
			}, []string{"op", "outcome"}),
			claimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vesting_claimed_tokens_total",
				Help: "Raw token units paid out through successful claims.",
			}),
			sweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vesting_swept_tokens_total",
				Help: "Raw token units reclaimed by admin sweeps.",
			}),
			scheduleCount: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vesting_schedules",
				Help: "Number of vesting schedules initialized by this service.",
			}),
		}
		prometheus.MustRegister(
			vestingRegistry.operations,
			vestingRegistry.claimedTotal,
			vestingRegistry.sweptTotal,
			vestingRegistry.scheduleCount,
		)
	})
	return vestingRegistry
}

func (m *VestingMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *VestingMetrics) AddClaimed(amount uint64) {
	if m == nil {
		return
	}
	m.claimedTotal.Add(float64(amount))
}

func (m *VestingMetrics) AddSwept(amount uint64) {
	if m == nil {
		return
	}
	m.sweptTotal.Add(float64(amount))
}

func (m *VestingMetrics) IncSchedules() {
	if m == nil {
		return
	}
	m.scheduleCount.Inc()
}

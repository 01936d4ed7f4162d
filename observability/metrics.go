package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VoucherMetrics records engine activity for the /metrics endpoint.
type VoucherMetrics struct {
	Created  *prometheus.CounterVec
	Redeemed prometheus.Counter
	Failures *prometheus.CounterVec
}

var (
	voucherMetricsOnce sync.Once
	voucherRegistry    *VoucherMetrics
)

// Vouchers returns the lazily-initialised voucher metrics registry.
func Vouchers() *VoucherMetrics {
	voucherMetricsOnce.Do(func() {
		voucherRegistry = &VoucherMetrics{
			Created: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "voucherchain",
				Subsystem: "engine",
				Name:      "vouchers_created_total",
				Help:      "Total vouchers minted, segmented by creation path.",
			}, []string{"path"}),
			Redeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "voucherchain",
				Subsystem: "engine",
				Name:      "redemptions_total",
				Help:      "Total successful voucher redemptions.",
			}),
			Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "voucherchain",
				Subsystem: "engine",
				Name:      "operation_failures_total",
				Help:      "Total failed engine operations segmented by operation.",
			}, []string{"op"}),
		}
		prometheus.MustRegister(voucherRegistry.Created, voucherRegistry.Redeemed, voucherRegistry.Failures)
	})
	return voucherRegistry
}

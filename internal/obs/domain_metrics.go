package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingQuotesTotal counts pricing calculations by tier and outcome.
	PricingQuotesTotal *prometheus.CounterVec
	// PricingGuardTotal counts family discount requests downgraded by the abuse guard.
	PricingGuardTotal *prometheus.CounterVec
	// CartItemsExpiredTotal counts cart items removed after their TTL elapsed.
	CartItemsExpiredTotal prometheus.Counter
	// CartMutationsTotal counts cart mutations by operation and result.
	CartMutationsTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// GatewayBreakerState exposes the payment gateway breaker state: 0=closed,1=open,2=half-open.
	GatewayBreakerState *prometheus.GaugeVec
	// GatewayBreakerTransitions counts breaker state transitions.
	GatewayBreakerTransitions *prometheus.CounterVec
	// NotificationsTotal counts enrollment notification enqueue and delivery outcomes.
	NotificationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quotes_total",
			Help:      "Count of pricing calculations by tier and result.",
		}, []string{"tier", "result"})
		PricingGuardTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_guard_total",
			Help:      "Count of family discount requests downgraded by the course-count guard.",
		}, []string{"reason"})
		CartItemsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_items_expired_total",
			Help:      "Number of cart items removed after their time-to-live elapsed.",
		})
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and result.",
		}, []string{"op", "result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		GatewayBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_breaker_state",
			Help:      "Current payment gateway breaker state: 0=closed,1=open,2=half-open.",
		}, []string{"gateway"})
		GatewayBreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_breaker_transition_total",
			Help:      "Count of payment gateway breaker state transitions.",
		}, []string{"gateway", "from", "to"})
		NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of enrollment notification outcomes.",
		}, []string{"stage", "result"})

		PricingQuotesTotal = registerOrReuse(reg, PricingQuotesTotal)
		PricingGuardTotal = registerOrReuse(reg, PricingGuardTotal)
		CartItemsExpiredTotal = registerOrReuse(reg, CartItemsExpiredTotal)
		CartMutationsTotal = registerOrReuse(reg, CartMutationsTotal)
		CheckoutTotal = registerOrReuse(reg, CheckoutTotal)
		GatewayBreakerState = registerOrReuse(reg, GatewayBreakerState)
		GatewayBreakerTransitions = registerOrReuse(reg, GatewayBreakerTransitions)
		NotificationsTotal = registerOrReuse(reg, NotificationsTotal)
	})
}

// IncCounterVec increments vec when it has been registered.
func IncCounterVec(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// AddCounter adds n to c when it has been registered.
func AddCounter(c prometheus.Counter, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Add(float64(n))
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "retreat"

var (
	once sync.Once

	lockAcquire = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Reservation lock attempts by result.",
		},
		[]string{"result"},
	)

	finalValidation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "final_validation_total",
			Help:      "Final validations before commit by result.",
		},
		[]string{"result"},
	)

	priceQuotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_quotes_total",
			Help:      "Count of computed price quotes.",
		},
	)

	rateCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_cache_total",
			Help:      "Rate configuration cache lookups by result.",
		},
		[]string{"result"},
	)

	rateSourceFallback = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_source_fallback_total",
			Help:      "Times rate loading degraded to a fallback source.",
		},
	)

	availabilityDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_check_duration_seconds",
			Help:      "Latency of availability checks.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			lockAcquire,
			finalValidation,
			priceQuotes,
			rateCache,
			rateSourceFallback,
			availabilityDuration,
			httpRequests,
		)
	})
}

func IncLockAcquire(acquired bool) {
	result := "acquired"
	if !acquired {
		result = "rejected"
	}
	lockAcquire.WithLabelValues(result).Inc()
}

func IncFinalValidation(result string) {
	finalValidation.WithLabelValues(result).Inc()
}

func IncPriceQuote() {
	priceQuotes.Inc()
}

func IncRateCache(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	rateCache.WithLabelValues(result).Inc()
}

func IncRateSourceFallback() {
	rateSourceFallback.Inc()
}

func ObserveAvailabilityCheck(start time.Time) {
	availabilityDuration.Observe(time.Since(start).Seconds())
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

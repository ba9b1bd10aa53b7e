package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_requests_created_total",
		Help: "Total number of service requests created",
	})

	RequestsMatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_requests_matched_total",
		Help: "Total number of service requests matched to a provider",
	})

	RequestsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_requests_completed_total",
		Help: "Total number of service requests completed",
	})

	RequestsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_requests_cancelled_total",
		Help: "Total number of service requests cancelled by customers",
	})

	RequestsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "service_requests_deleted_total",
		Help: "Total number of service requests deleted",
	}, []string{"reason"})

	OffersDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_offers_dispatched_total",
		Help: "Total number of provider offers dispatched",
	})

	OffersAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_offers_accepted_total",
		Help: "Total number of provider offers accepted with a quote",
	})

	OffersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_offers_rejected_total",
		Help: "Total number of provider offers rejected",
	})

	OffersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_offers_expired_total",
		Help: "Total number of provider offers expired by the lifecycle sweep",
	})

	OfferRemindersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_offer_reminders_sent_total",
		Help: "Total number of offer expiry reminders sent",
	})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_notification_failures_total",
		Help: "Total number of failed provider notification deliveries",
	}, []string{"detail"})

	DispatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_dispatch_failures_total",
		Help: "Total number of dispatch attempts that produced no offers",
	}, []string{"reason"})

	WalletDebitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_debits_total",
		Help: "Total number of successful wallet debits",
	})

	WalletRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_rejections_total",
		Help: "Total number of wallet transactions blocked by insufficient balance",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offer_sweep_duration_seconds",
		Help:    "Duration of offer lifecycle sweeps",
		Buckets: prometheus.DefBuckets,
	})

	SweepExpirations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offer_sweep_expirations",
		Help:    "Offers expired per lifecycle sweep",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	EventsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_events_observed_total",
		Help: "The total number of normalized chain events inserted into the cache",
	}, []string{"chain_id", "kind"})

	EventsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_events_deduplicated_total",
		Help: "The total number of already-cached events dropped by the monitor",
	}, []string{"chain_id", "kind"})

	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_decode_failures_total",
		Help: "The total number of observed events discarded because they could not be decoded",
	}, []string{"chain_id"})

	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_poll_errors_total",
		Help: "The total number of polling ticks skipped due to chain RPC errors",
	}, []string{"chain_id"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verifier_poll_duration_seconds",
		Help:    "Time taken by one polling tick per chain",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id"})

	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_validations_total",
		Help: "Validation verdicts by direction and outcome reason",
	}, []string{"direction", "reason"})

	ApprovalsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_approvals_issued_total",
		Help: "The total number of approval signatures issued",
	}, []string{"direction", "scheme"})

	ApprovalCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_approval_cache_hits_total",
		Help: "Approval requests answered from the idempotency cache",
	}, []string{"direction"})

	SigningErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verifier_signing_errors_total",
		Help: "The total number of failed signing operations",
	}, []string{"scheme"})

	DraftsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verifier_drafts_submitted_total",
		Help: "The total number of draft intents accepted",
	})

	DraftsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verifier_drafts_claimed_total",
		Help: "The total number of drafts claimed by a solver signature",
	})

	DraftConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verifier_draft_conflicts_total",
		Help: "Signature submissions rejected because the draft was already claimed",
	})

	CachedRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "verifier_cached_records",
		Help: "Current number of cached records by type",
	}, []string{"type"})
)

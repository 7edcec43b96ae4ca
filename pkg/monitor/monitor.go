// Package monitor runs one polling loop per chain, normalizes observed
// events through the chain adapters, and inserts them into the shared store.
// It owns deduplication and nothing else: decode rules live in the adapters,
// correctness rules in the validator.
package monitor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/circuitbreaker"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/metrics"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/store"
)

// Monitor polls a set of chain adapters on a fixed interval. Chains poll
// concurrently: one chain's RPC latency never stalls observation of another.
type Monitor struct {
	adapters []chains.Adapter
	store    store.Store
	breakers map[int]*circuitbreaker.CircuitBreaker
	interval time.Duration
	logger   logger.Logger
	wg       sync.WaitGroup
}

// New creates a monitor over the given adapters. The breakers map is shared
// with the validator so chain RPC health is tracked in one place.
func New(adapters []chains.Adapter, st store.Store, breakers map[int]*circuitbreaker.CircuitBreaker, interval time.Duration, log logger.Logger) *Monitor {
	return &Monitor{
		adapters: adapters,
		store:    st,
		breakers: breakers,
		interval: interval,
		logger:   log,
	}
}

// Start launches one polling goroutine per chain and blocks until ctx is
// done and all loops have exited. Polling never stops on errors: the
// approval pipeline must stay live as long as any chain is reachable.
func (m *Monitor) Start(ctx context.Context) {
	for _, adapter := range m.adapters {
		m.wg.Add(1)
		go func(a chains.Adapter) {
			defer m.wg.Done()
			m.pollLoop(ctx, a)
		}(adapter)
	}
	m.wg.Wait()
}

func (m *Monitor) pollLoop(ctx context.Context, adapter chains.Adapter) {
	chainID := adapter.ChainID()
	m.logger.NoticeWithChain(chainID, "Starting event polling with interval %v", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.NoticeWithChain(chainID, "Polling loop shutting down")
			return
		case <-ticker.C:
			m.tick(ctx, adapter)
		}
	}
}

// tick runs one poll for one chain. An adapter failure skips the tick and is
// logged; no partial state is applied.
func (m *Monitor) tick(ctx context.Context, adapter chains.Adapter) {
	chainID := adapter.ChainID()
	chainLabel := strconv.Itoa(chainID)

	start := time.Now()
	result, err := adapter.PollEvents(ctx)
	metrics.PollDuration.WithLabelValues(chainLabel).Observe(time.Since(start).Seconds())

	if err != nil {
		m.logger.ErrorWithChain(chainID, "Poll tick skipped: %v", err)
		metrics.PollErrors.WithLabelValues(chainLabel).Inc()
		if cb, ok := m.breakers[chainID]; ok {
			cb.RecordFailure()
		}
		return
	}
	if cb, ok := m.breakers[chainID]; ok {
		cb.RecordSuccess()
	}

	for _, decodeErr := range result.DecodeErrs {
		m.logger.ErrorWithChain(chainID, "Dropped undecodable event: %v", decodeErr)
		metrics.DecodeFailures.WithLabelValues(chainLabel).Inc()
	}

	for _, event := range result.Events {
		m.apply(event)
	}
}

// apply inserts one normalized event, deduplicating by (chain, intent,
// kind). Terminal fields are never overwritten: a fulfillment marks the
// intent's fulfilled_by at most once, and repeated events of any kind are
// dropped.
func (m *Monitor) apply(event models.Event) {
	chainLabel := strconv.Itoa(event.ChainID)

	var inserted bool
	switch event.Kind {
	case models.EventIntentCreated:
		inserted = m.store.InsertIntent(*event.Intent)
	case models.EventEscrowCreated:
		inserted = m.store.InsertEscrow(*event.Escrow)
	case models.EventFulfillment:
		inserted = m.store.InsertFulfillment(*event.Fulfillment)
		if inserted {
			// Sets the intent's terminal field if the intent is already
			// cached; a later-arriving intent record simply stays Observed
			// until re-derived on demand.
			m.store.MarkIntentFulfilled(event.IntentID, event.Fulfillment.Solver, event.Fulfillment.TxReference)
		}
	default:
		m.logger.ErrorWithChain(event.ChainID, "Unknown event kind %q for intent %s", event.Kind, event.IntentID)
		return
	}

	if !inserted {
		m.logger.DebugWithChain(event.ChainID, "Duplicate %s event for intent %s", event.Kind, event.IntentID)
		metrics.EventsDeduplicated.WithLabelValues(chainLabel, string(event.Kind)).Inc()
		return
	}

	m.logger.InfoWithChain(event.ChainID, "Observed %s for intent %s", event.Kind, event.IntentID)
	metrics.EventsObserved.WithLabelValues(chainLabel, string(event.Kind)).Inc()
	// Records are never deleted, so the gauge only ever moves up.
	metrics.CachedRecords.WithLabelValues(string(event.Kind)).Inc()
}

package store

import (
	"sort"
	"sync"
	"time"

	"github.com/intentwire/verifier/pkg/models"
)

// Memory is the in-process Store implementation. A restart loses it by
// design; the monitor rebuilds it from chain state on the next polls.
type Memory struct {
	mu           sync.RWMutex
	intents      map[string]models.IntentRecord
	escrows      map[ChainKey]models.EscrowRecord
	fulfillments map[ChainKey]models.FulfillmentRecord
	approvals    map[models.ApprovalKey]models.ApprovalRecord
	drafts       map[string]models.DraftIntent
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		intents:      make(map[string]models.IntentRecord),
		escrows:      make(map[ChainKey]models.EscrowRecord),
		fulfillments: make(map[ChainKey]models.FulfillmentRecord),
		approvals:    make(map[models.ApprovalKey]models.ApprovalRecord),
		drafts:       make(map[string]models.DraftIntent),
	}
}

func (m *Memory) Intent(intentID string) (models.IntentRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.intents[intentID]
	return rec, ok
}

func (m *Memory) InsertIntent(rec models.IntentRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.intents[rec.IntentID]; exists {
		return false
	}
	m.intents[rec.IntentID] = rec
	return true
}

func (m *Memory) MarkIntentFulfilled(intentID, solver, txRef string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.intents[intentID]
	if !ok || rec.FulfilledBy != "" {
		return false
	}
	rec.FulfilledBy = solver
	rec.FulfilledTx = txRef
	m.intents[intentID] = rec
	return true
}

func (m *Memory) Escrow(key ChainKey) (models.EscrowRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.escrows[key]
	return rec, ok
}

// EscrowByIntent returns the escrow with the lowest chain ID when an intent
// has escrows on several chains, so repeated lookups pick the same one.
func (m *Memory) EscrowByIntent(intentID string) (models.EscrowRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  models.EscrowRecord
		found bool
	)
	for key, rec := range m.escrows {
		if key.IntentID != intentID {
			continue
		}
		if !found || rec.ChainID < best.ChainID {
			best = rec
			found = true
		}
	}
	return best, found
}

func (m *Memory) InsertEscrow(rec models.EscrowRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ChainKey{IntentID: rec.IntentID, ChainID: rec.ChainID}
	if _, exists := m.escrows[key]; exists {
		return false
	}
	m.escrows[key] = rec
	return true
}

func (m *Memory) Fulfillment(key ChainKey) (models.FulfillmentRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.fulfillments[key]
	return rec, ok
}

// FulfillmentByIntent picks by lowest chain ID for the same reason as
// EscrowByIntent.
func (m *Memory) FulfillmentByIntent(intentID string) (models.FulfillmentRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  models.FulfillmentRecord
		found bool
	)
	for key, rec := range m.fulfillments {
		if key.IntentID != intentID {
			continue
		}
		if !found || rec.ChainID < best.ChainID {
			best = rec
			found = true
		}
	}
	return best, found
}

func (m *Memory) InsertFulfillment(rec models.FulfillmentRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ChainKey{IntentID: rec.IntentID, ChainID: rec.ChainID}
	if _, exists := m.fulfillments[key]; exists {
		return false
	}
	m.fulfillments[key] = rec
	return true
}

func (m *Memory) Approval(key models.ApprovalKey) (models.ApprovalRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.approvals[key]
	return rec, ok
}

func (m *Memory) InsertApproval(rec models.ApprovalRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.ApprovalKey{IntentID: rec.IntentID, Direction: rec.Direction}
	if _, exists := m.approvals[key]; exists {
		return false
	}
	m.approvals[key] = rec
	return true
}

func (m *Memory) Draft(draftID string) (models.DraftIntent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.drafts[draftID]
	return rec, ok
}

func (m *Memory) InsertDraft(rec models.DraftIntent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.drafts[rec.DraftID]; exists {
		return false
	}
	m.drafts[rec.DraftID] = rec
	return true
}

func (m *Memory) PendingDrafts() []models.DraftIntent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DraftIntent, 0)
	for _, rec := range m.drafts {
		if rec.State == models.DraftPending {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ClaimDraft(draftID, solver string, signature []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.drafts[draftID]
	if !ok || rec.State != models.DraftPending {
		return false
	}
	rec.State = models.DraftSigned
	rec.Solver = solver
	rec.Signature = append([]byte(nil), signature...)
	rec.SignedAt = time.Now().UTC()
	m.drafts[draftID] = rec
	return true
}

func (m *Memory) Records() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		Intents:      make([]models.IntentRecord, 0, len(m.intents)),
		Escrows:      make([]models.EscrowRecord, 0, len(m.escrows)),
		Fulfillments: make([]models.FulfillmentRecord, 0, len(m.fulfillments)),
	}
	for _, rec := range m.intents {
		snap.Intents = append(snap.Intents, rec)
	}
	for _, rec := range m.escrows {
		snap.Escrows = append(snap.Escrows, rec)
	}
	for _, rec := range m.fulfillments {
		snap.Fulfillments = append(snap.Fulfillments, rec)
	}
	sort.Slice(snap.Intents, func(i, j int) bool { return snap.Intents[i].ObservedAt.Before(snap.Intents[j].ObservedAt) })
	sort.Slice(snap.Escrows, func(i, j int) bool { return snap.Escrows[i].ObservedAt.Before(snap.Escrows[j].ObservedAt) })
	sort.Slice(snap.Fulfillments, func(i, j int) bool { return snap.Fulfillments[i].ObservedAt.Before(snap.Fulfillments[j].ObservedAt) })
	return snap
}

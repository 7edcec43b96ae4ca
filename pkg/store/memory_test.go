package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentwire/verifier/pkg/models"
)

func TestMemoryIntents(t *testing.T) {
	t.Run("insert is first-write-wins", func(t *testing.T) {
		m := NewMemory()

		first := models.IntentRecord{IntentID: "0xaa", Issuer: "0x1111"}
		second := models.IntentRecord{IntentID: "0xaa", Issuer: "0x2222"}

		assert.True(t, m.InsertIntent(first))
		assert.False(t, m.InsertIntent(second))

		got, ok := m.Intent("0xaa")
		require.True(t, ok)
		assert.Equal(t, "0x1111", got.Issuer, "duplicate insert must not overwrite")
	})

	t.Run("lookup of unknown intent", func(t *testing.T) {
		m := NewMemory()
		_, ok := m.Intent("0xmissing")
		assert.False(t, ok)
	})

	t.Run("mark fulfilled exactly once", func(t *testing.T) {
		m := NewMemory()
		require.True(t, m.InsertIntent(models.IntentRecord{IntentID: "0xaa"}))

		assert.True(t, m.MarkIntentFulfilled("0xaa", "0xsolver1", "0xtx1"))
		assert.False(t, m.MarkIntentFulfilled("0xaa", "0xsolver2", "0xtx2"))
		assert.False(t, m.MarkIntentFulfilled("0xmissing", "0xsolver", "0xtx"))

		got, ok := m.Intent("0xaa")
		require.True(t, ok)
		assert.Equal(t, "0xsolver1", got.FulfilledBy)
		assert.Equal(t, "0xtx1", got.FulfilledTx)
	})
}

func TestMemoryEscrowsAndFulfillments(t *testing.T) {
	t.Run("escrows are keyed per intent and chain", func(t *testing.T) {
		m := NewMemory()

		assert.True(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xaa", ChainID: 8453, LockedAmount: "100"}))
		assert.False(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xaa", ChainID: 8453, LockedAmount: "999"}))
		assert.True(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xaa", ChainID: 900, LockedAmount: "100"}))

		got, ok := m.Escrow(ChainKey{IntentID: "0xaa", ChainID: 8453})
		require.True(t, ok)
		assert.Equal(t, "100", got.LockedAmount)

		byIntent, ok := m.EscrowByIntent("0xaa")
		require.True(t, ok)
		assert.Equal(t, "0xaa", byIntent.IntentID)

		_, ok = m.EscrowByIntent("0xbb")
		assert.False(t, ok)
	})

	t.Run("escrow lookup by intent is deterministic across chains", func(t *testing.T) {
		m := NewMemory()

		// Insert in descending chain order so a map-iteration pick would be
		// likely to differ between runs.
		require.True(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xaa", ChainID: 8453, LockedAmount: "300"}))
		require.True(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xaa", ChainID: 900, LockedAmount: "200"}))
		require.True(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xaa", ChainID: 42161, LockedAmount: "400"}))
		require.True(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xbb", ChainID: 1, LockedAmount: "999"}))

		for i := 0; i < 50; i++ {
			got, ok := m.EscrowByIntent("0xaa")
			require.True(t, ok)
			assert.Equal(t, 900, got.ChainID, "lowest chain id wins every time")
			assert.Equal(t, "200", got.LockedAmount)
		}
	})

	t.Run("fulfillment lookup by intent is deterministic across chains", func(t *testing.T) {
		m := NewMemory()

		require.True(t, m.InsertFulfillment(models.FulfillmentRecord{IntentID: "0xaa", ChainID: 42161, Solver: "0xs2"}))
		require.True(t, m.InsertFulfillment(models.FulfillmentRecord{IntentID: "0xaa", ChainID: 8453, Solver: "0xs1"}))

		for i := 0; i < 50; i++ {
			got, ok := m.FulfillmentByIntent("0xaa")
			require.True(t, ok)
			assert.Equal(t, 8453, got.ChainID)
			assert.Equal(t, "0xs1", got.Solver)
		}
	})

	t.Run("fulfillments are keyed per intent and chain", func(t *testing.T) {
		m := NewMemory()

		assert.True(t, m.InsertFulfillment(models.FulfillmentRecord{IntentID: "0xaa", ChainID: 8453, Solver: "0xs1"}))
		assert.False(t, m.InsertFulfillment(models.FulfillmentRecord{IntentID: "0xaa", ChainID: 8453, Solver: "0xs2"}))

		got, ok := m.FulfillmentByIntent("0xaa")
		require.True(t, ok)
		assert.Equal(t, "0xs1", got.Solver, "second insert must not replace the first")
	})
}

func TestMemoryApprovals(t *testing.T) {
	m := NewMemory()

	key := models.ApprovalKey{IntentID: "0xaa", Direction: models.DirectionOutflow}
	rec := models.ApprovalRecord{IntentID: "0xaa", Direction: models.DirectionOutflow, Signature: []byte{1, 2, 3}}

	assert.True(t, m.InsertApproval(rec))
	assert.False(t, m.InsertApproval(models.ApprovalRecord{IntentID: "0xaa", Direction: models.DirectionOutflow, Signature: []byte{9}}))

	got, ok := m.Approval(key)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got.Signature)

	// The other direction is a distinct slot.
	assert.True(t, m.InsertApproval(models.ApprovalRecord{IntentID: "0xaa", Direction: models.DirectionInflow}))
}

func TestMemoryDrafts(t *testing.T) {
	t.Run("pending drafts are returned oldest first", func(t *testing.T) {
		m := NewMemory()
		base := time.Now().UTC()

		require.True(t, m.InsertDraft(models.DraftIntent{DraftID: "d2", State: models.DraftPending, CreatedAt: base.Add(2 * time.Second)}))
		require.True(t, m.InsertDraft(models.DraftIntent{DraftID: "d1", State: models.DraftPending, CreatedAt: base}))
		require.True(t, m.InsertDraft(models.DraftIntent{DraftID: "d3", State: models.DraftSigned, CreatedAt: base.Add(time.Second)}))

		pending := m.PendingDrafts()
		require.Len(t, pending, 2)
		assert.Equal(t, "d1", pending[0].DraftID)
		assert.Equal(t, "d2", pending[1].DraftID)
	})

	t.Run("claim transitions pending to signed once", func(t *testing.T) {
		m := NewMemory()
		require.True(t, m.InsertDraft(models.DraftIntent{DraftID: "d1", State: models.DraftPending}))

		assert.True(t, m.ClaimDraft("d1", "0xsolver1", []byte{1}))
		assert.False(t, m.ClaimDraft("d1", "0xsolver2", []byte{2}))
		assert.False(t, m.ClaimDraft("dX", "0xsolver", []byte{3}))

		got, ok := m.Draft("d1")
		require.True(t, ok)
		assert.Equal(t, models.DraftSigned, got.State)
		assert.Equal(t, "0xsolver1", got.Solver)
		assert.Equal(t, []byte{1}, got.Signature)
		assert.False(t, got.SignedAt.IsZero())
	})

	t.Run("concurrent claims admit exactly one winner", func(t *testing.T) {
		m := NewMemory()
		require.True(t, m.InsertDraft(models.DraftIntent{DraftID: "d1", State: models.DraftPending}))

		const solvers = 32
		var wg sync.WaitGroup
		wins := make(chan string, solvers)

		for i := 0; i < solvers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				solver := fmt.Sprintf("0xsolver%d", n)
				if m.ClaimDraft("d1", solver, []byte{byte(n)}) {
					wins <- solver
				}
			}(i)
		}
		wg.Wait()
		close(wins)

		var winners []string
		for w := range wins {
			winners = append(winners, w)
		}
		require.Len(t, winners, 1)

		got, _ := m.Draft("d1")
		assert.Equal(t, winners[0], got.Solver)
	})
}

func TestMemoryRecordsSnapshot(t *testing.T) {
	m := NewMemory()
	base := time.Now().UTC()

	require.True(t, m.InsertIntent(models.IntentRecord{IntentID: "0xbb", ObservedAt: base.Add(time.Second)}))
	require.True(t, m.InsertIntent(models.IntentRecord{IntentID: "0xaa", ObservedAt: base}))
	require.True(t, m.InsertEscrow(models.EscrowRecord{IntentID: "0xaa", ChainID: 900, ObservedAt: base}))
	require.True(t, m.InsertFulfillment(models.FulfillmentRecord{IntentID: "0xbb", ChainID: 8453, ObservedAt: base}))

	snap := m.Records()
	require.Len(t, snap.Intents, 2)
	assert.Equal(t, "0xaa", snap.Intents[0].IntentID, "snapshot is ordered by observation time")
	assert.Len(t, snap.Escrows, 1)
	assert.Len(t, snap.Fulfillments, 1)

	// The snapshot is a copy; mutating it must not touch the store.
	snap.Intents[0].Issuer = "mutated"
	got, _ := m.Intent("0xaa")
	assert.Empty(t, got.Issuer)
}

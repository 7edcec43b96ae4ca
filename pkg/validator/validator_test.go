package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/circuitbreaker"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/store"
)

const testIntentID = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// fakeAdapter satisfies chains.Adapter with canned responses.
type fakeAdapter struct {
	chainID     int
	kind        models.ChainKind
	fulfillment models.FulfillmentRecord
	fetchErr    error
}

func (f *fakeAdapter) ChainID() int           { return f.chainID }
func (f *fakeAdapter) Kind() models.ChainKind { return f.kind }
func (f *fakeAdapter) Name() string           { return "FAKE" }

func (f *fakeAdapter) PollEvents(_ context.Context) (chains.PollResult, error) {
	return chains.PollResult{}, nil
}

func (f *fakeAdapter) FetchFulfillment(_ context.Context, _ models.IntentRecord, _ string) (models.FulfillmentRecord, error) {
	if f.fetchErr != nil {
		return models.FulfillmentRecord{}, f.fetchErr
	}
	return f.fulfillment, nil
}

func (f *fakeAdapter) Healthy(_ context.Context) error { return nil }

func testIntent() models.IntentRecord {
	return models.IntentRecord{
		IntentID:         testIntentID,
		ChainID:          7000,
		DestinationChain: 8453,
		Issuer:           "0xissuer",
		SourceAsset:      "0xsourcetoken",
		SourceAmount:     "500",
		DesiredAsset:     "0xusdc",
		DesiredAmount:    "1000000",
		Recipient:        "0xrecipient",
		ObservedAt:       time.Now().UTC(),
	}
}

func goodFulfillment() models.FulfillmentRecord {
	return models.FulfillmentRecord{
		IntentID:       testIntentID,
		ChainID:        8453,
		Solver:         "0xsolver",
		ProvidedAsset:  "0xusdc",
		ProvidedAmount: "1000000",
		Recipient:      "0xrecipient",
		TxReference:    "0xfulfilltx",
		Succeeded:      true,
		ObservedAt:     time.Now().UTC(),
	}
}

func newTestValidator(st store.Store, adapter chains.Adapter) (*Validator, *circuitbreaker.CircuitBreaker) {
	log := &logger.EmptyLogger{}
	breaker := circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Minute, log)
	adapters := map[int]chains.Adapter{}
	breakers := map[int]*circuitbreaker.CircuitBreaker{}
	if adapter != nil {
		adapters[adapter.ChainID()] = adapter
		breakers[adapter.ChainID()] = breaker
	}
	return New(st, adapters, breakers, log), breaker
}

func TestValidateOutflowCached(t *testing.T) {
	t.Run("matching cached fulfillment is approved", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		require.True(t, st.InsertFulfillment(goodFulfillment()))

		v, _ := newTestValidator(st, nil)
		got, err := v.ValidateOutflow(context.Background(), testIntentID, "")
		require.NoError(t, err)
		assert.Equal(t, "0xsolver", got.Solver)
	})

	t.Run("intent not observed is transient", func(t *testing.T) {
		st := store.NewMemory()
		v, _ := newTestValidator(st, nil)

		_, err := v.ValidateOutflow(context.Background(), testIntentID, "")
		assert.Equal(t, models.ReasonIntentNotObserved, models.ReasonOf(err))
		assert.True(t, models.ReasonOf(err).Transient())
	})

	t.Run("no fulfillment observed yet is transient", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		v, _ := newTestValidator(st, nil)

		_, err := v.ValidateOutflow(context.Background(), testIntentID, "")
		assert.Equal(t, models.ReasonTxNotFound, models.ReasonOf(err))
		assert.True(t, models.ReasonOf(err).Transient())
	})
}

func TestValidateOutflowPredicate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*models.FulfillmentRecord)
		reason models.ReasonCode
	}{
		{
			name:   "failed transaction",
			mutate: func(f *models.FulfillmentRecord) { f.Succeeded = false },
			reason: models.ReasonTxFailed,
		},
		{
			name:   "wrong token",
			mutate: func(f *models.FulfillmentRecord) { f.ProvidedAsset = "0xusdt" },
			reason: models.ReasonTokenMismatch,
		},
		{
			name:   "amount one unit short",
			mutate: func(f *models.FulfillmentRecord) { f.ProvidedAmount = "999999" },
			reason: models.ReasonAmountMismatch,
		},
		{
			name:   "amount one unit over",
			mutate: func(f *models.FulfillmentRecord) { f.ProvidedAmount = "1000001" },
			reason: models.ReasonAmountMismatch,
		},
		{
			name:   "unparseable amount",
			mutate: func(f *models.FulfillmentRecord) { f.ProvidedAmount = "1.5e6" },
			reason: models.ReasonMalformedTx,
		},
		{
			name:   "wrong recipient",
			mutate: func(f *models.FulfillmentRecord) { f.Recipient = "0xattacker" },
			reason: models.ReasonRecipientMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewMemory()
			require.True(t, st.InsertIntent(testIntent()))

			f := goodFulfillment()
			tc.mutate(&f)
			require.True(t, st.InsertFulfillment(f))

			v, _ := newTestValidator(st, nil)
			_, err := v.ValidateOutflow(context.Background(), testIntentID, "")
			assert.Equal(t, tc.reason, models.ReasonOf(err))
			assert.False(t, models.ReasonOf(err).Transient(), "predicate rejections are permanent")
		})
	}

	t.Run("reserved intent rejects other solvers", func(t *testing.T) {
		st := store.NewMemory()
		intent := testIntent()
		intent.ReservedSolver = "0xchosen"
		require.True(t, st.InsertIntent(intent))
		require.True(t, st.InsertFulfillment(goodFulfillment()))

		v, _ := newTestValidator(st, nil)
		_, err := v.ValidateOutflow(context.Background(), testIntentID, "")
		assert.Equal(t, models.ReasonSolverMismatch, models.ReasonOf(err))
	})

	t.Run("reserved intent accepts the reserved solver", func(t *testing.T) {
		st := store.NewMemory()
		intent := testIntent()
		intent.ReservedSolver = "0xsolver"
		require.True(t, st.InsertIntent(intent))
		require.True(t, st.InsertFulfillment(goodFulfillment()))

		v, _ := newTestValidator(st, nil)
		_, err := v.ValidateOutflow(context.Background(), testIntentID, "")
		assert.NoError(t, err)
	})
}

func TestValidateOutflowOnDemand(t *testing.T) {
	t.Run("adapter lookup validates a fresh transaction", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		adapter := &fakeAdapter{chainID: 8453, kind: models.ChainKindEVM, fulfillment: goodFulfillment()}

		v, _ := newTestValidator(st, adapter)
		got, err := v.ValidateOutflow(context.Background(), testIntentID, "0xfulfilltx")
		require.NoError(t, err)
		assert.Equal(t, "0xfulfilltx", got.TxReference)
	})

	t.Run("unknown destination chain", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))

		v, _ := newTestValidator(st, nil)
		_, err := v.ValidateOutflow(context.Background(), testIntentID, "0xfulfilltx")
		assert.Equal(t, models.ReasonUnknownChain, models.ReasonOf(err))
	})

	t.Run("transaction not found is transient", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		adapter := &fakeAdapter{chainID: 8453, kind: models.ChainKindEVM, fetchErr: chains.ErrTxNotFound}

		v, _ := newTestValidator(st, adapter)
		_, err := v.ValidateOutflow(context.Background(), testIntentID, "0xpendingtx")
		assert.Equal(t, models.ReasonTxNotFound, models.ReasonOf(err))
	})

	t.Run("adapter rejection passes through", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		adapter := &fakeAdapter{
			chainID:  8453,
			kind:     models.ChainKindEVM,
			fetchErr: models.Reject(models.ReasonMalformedTx, "not a token transfer"),
		}

		v, _ := newTestValidator(st, adapter)
		_, err := v.ValidateOutflow(context.Background(), testIntentID, "0xweirdtx")
		assert.Equal(t, models.ReasonMalformedTx, models.ReasonOf(err))
	})

	t.Run("transport failure trips the breaker, not a verdict", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		adapter := &fakeAdapter{chainID: 8453, kind: models.ChainKindEVM, fetchErr: errors.New("connection refused")}

		v, breaker := newTestValidator(st, adapter)
		_, err := v.ValidateOutflow(context.Background(), testIntentID, "0xfulfilltx")
		assert.Equal(t, models.ReasonChainUnavailable, models.ReasonOf(err))
		assert.True(t, models.ReasonOf(err).Transient())
		assert.True(t, breaker.IsOpen(), "threshold 1 means one failure trips it")

		// With the circuit open the adapter is not consulted at all.
		adapter.fetchErr = nil
		_, err = v.ValidateOutflow(context.Background(), testIntentID, "0xfulfilltx")
		assert.Equal(t, models.ReasonChainUnavailable, models.ReasonOf(err))
	})
}

func TestValidateInflow(t *testing.T) {
	goodEscrow := func() models.EscrowRecord {
		return models.EscrowRecord{
			IntentID:     testIntentID,
			ChainID:      8453,
			Requester:    "0xissuer",
			LockedAsset:  "0xsourcetoken",
			LockedAmount: "500",
			Revocable:    false,
			ObservedAt:   time.Now().UTC(),
		}
	}

	t.Run("matching irrevocable escrow is approved", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		require.True(t, st.InsertEscrow(goodEscrow()))

		v, _ := newTestValidator(st, nil)
		got, err := v.ValidateInflow(context.Background(), testIntentID)
		require.NoError(t, err)
		assert.Equal(t, 8453, got.ChainID)
	})

	t.Run("intent not observed", func(t *testing.T) {
		st := store.NewMemory()
		v, _ := newTestValidator(st, nil)

		_, err := v.ValidateInflow(context.Background(), testIntentID)
		assert.Equal(t, models.ReasonIntentNotObserved, models.ReasonOf(err))
	})

	t.Run("escrow not observed", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))

		v, _ := newTestValidator(st, nil)
		_, err := v.ValidateInflow(context.Background(), testIntentID)
		assert.Equal(t, models.ReasonEscrowNotObserved, models.ReasonOf(err))
		assert.True(t, models.ReasonOf(err).Transient())
	})

	t.Run("revocable escrow is never approved", func(t *testing.T) {
		st := store.NewMemory()
		require.True(t, st.InsertIntent(testIntent()))
		escrow := goodEscrow()
		escrow.Revocable = true
		// Even a perfectly matching escrow fails on revocability, and the
		// check fires before any asset comparison.
		escrow.LockedAsset = "0xwrongtoken"
		require.True(t, st.InsertEscrow(escrow))

		v, _ := newTestValidator(st, nil)
		_, err := v.ValidateInflow(context.Background(), testIntentID)
		assert.Equal(t, models.ReasonRevocableEscrow, models.ReasonOf(err))
	})

	testCases := []struct {
		name   string
		mutate func(*models.EscrowRecord)
		reason models.ReasonCode
	}{
		{
			name:   "wrong locked asset",
			mutate: func(e *models.EscrowRecord) { e.LockedAsset = "0xother" },
			reason: models.ReasonTokenMismatch,
		},
		{
			name:   "locked amount short",
			mutate: func(e *models.EscrowRecord) { e.LockedAmount = "499" },
			reason: models.ReasonAmountMismatch,
		},
		{
			name:   "escrow reserves a different solver",
			mutate: func(e *models.EscrowRecord) { e.ReservedSolver = "0xother" },
			reason: models.ReasonSolverMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewMemory()
			require.True(t, st.InsertIntent(testIntent()))
			escrow := goodEscrow()
			tc.mutate(&escrow)
			require.True(t, st.InsertEscrow(escrow))

			v, _ := newTestValidator(st, nil)
			_, err := v.ValidateInflow(context.Background(), testIntentID)
			assert.Equal(t, tc.reason, models.ReasonOf(err))
		})
	}
}

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentwire/verifier/pkg/api"
	"github.com/intentwire/verifier/pkg/approval"
	"github.com/intentwire/verifier/pkg/chains"
	"github.com/intentwire/verifier/pkg/circuitbreaker"
	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/models"
	"github.com/intentwire/verifier/pkg/router"
	"github.com/intentwire/verifier/pkg/store"
	"github.com/intentwire/verifier/pkg/validator"
)

const (
	testIntentID = "0x8888888888888888888888888888888888888888888888888888888888888888"
	solverKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

// newTestServer stands up the real API over a seeded in-memory store.
func newTestServer(t *testing.T) (*Client, *store.Memory) {
	t.Helper()
	log := &logger.EmptyLogger{}
	st := store.NewMemory()

	adapters := map[int]chains.Adapter{}
	breakers := map[int]*circuitbreaker.CircuitBreaker{}
	v := validator.New(st, adapters, breakers, log)

	signer, err := approval.NewEcdsaSigner(solverKey)
	require.NoError(t, err)
	kindOf := func(chainID int) (models.ChainKind, bool) {
		if chainID == 7000 {
			return models.ChainKindEVM, true
		}
		return "", false
	}
	approvals := approval.New(st, v, []approval.Signer{signer}, kindOf, log)
	drafts := router.New(st, log)

	srv := httptest.NewServer(api.NewServer("0", st, v, approvals, drafts, adapters, breakers, log).Handler())
	t.Cleanup(srv.Close)

	return New(srv.URL, log), st
}

func seedApprovedOutflow(t *testing.T, st *store.Memory) {
	t.Helper()
	require.True(t, st.InsertIntent(models.IntentRecord{
		IntentID:         testIntentID,
		ChainID:          7000,
		DestinationChain: 8453,
		DesiredAsset:     "0xusdc",
		DesiredAmount:    "1000000",
		Recipient:        "0xrecipient",
		ObservedAt:       time.Now().UTC(),
	}))
	require.True(t, st.InsertFulfillment(models.FulfillmentRecord{
		IntentID:       testIntentID,
		ChainID:        8453,
		Solver:         "0xsolver",
		ProvidedAsset:  "0xusdc",
		ProvidedAmount: "1000000",
		Recipient:      "0xrecipient",
		Succeeded:      true,
		ObservedAt:     time.Now().UTC(),
	}))
}

func TestRequestApproval(t *testing.T) {
	ctx := context.Background()

	t.Run("approved intent", func(t *testing.T) {
		c, st := newTestServer(t)
		seedApprovedOutflow(t, st)

		got, err := c.RequestApproval(ctx, testIntentID, models.DirectionOutflow)
		require.NoError(t, err)
		assert.Equal(t, testIntentID, got.IntentID)
		assert.Equal(t, models.SchemeECDSA, got.Scheme)
		assert.NotEmpty(t, got.Signature)
	})

	t.Run("transient rejection is typed", func(t *testing.T) {
		c, _ := newTestServer(t)

		_, err := c.RequestApproval(ctx, testIntentID, models.DirectionOutflow)
		require.Error(t, err)

		var rejection *Rejection
		require.True(t, errors.As(err, &rejection))
		assert.Equal(t, models.ReasonIntentNotObserved, rejection.Reason)
		assert.True(t, rejection.Transient)
	})
}

func TestPublicKeys(t *testing.T) {
	c, _ := newTestServer(t)

	keys, err := c.PublicKeys(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, keys[models.SchemeECDSA])
}

func TestDraftLifecycle(t *testing.T) {
	ctx := context.Background()
	c, st := newTestServer(t)

	draftID, err := c.SubmitDraft(ctx, models.DraftIntent{
		Offerer:       "0xofferer",
		SourceAsset:   "0xusdc",
		SourceAmount:  "1000000",
		DesiredAsset:  "0xusdt",
		DesiredAmount: "995000",
		ExpiryTime:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, draftID)

	pending, err := c.FetchPendingDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, draftID, pending[0].DraftID)

	// Unclaimed drafts report pending, not an error status.
	_, _, err = c.WinningSignature(ctx, draftID)
	require.ErrorIs(t, err, ErrDraftPending)

	draft, ok := st.Draft(draftID)
	require.True(t, ok)
	signature, err := router.SignDraft(draft, solverKey)
	require.NoError(t, err)

	priv, err := crypto.HexToECDSA(solverKey)
	require.NoError(t, err)
	solver := crypto.PubkeyToAddress(priv.PublicKey).Hex()

	require.NoError(t, c.ClaimDraft(ctx, draftID, solver, signature))

	// The slot is taken; a repeat claim reports the conflict.
	err = c.ClaimDraft(ctx, draftID, solver, signature)
	var rejection *Rejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, models.ReasonAlreadyClaimed, rejection.Reason)
	assert.False(t, rejection.Transient)

	gotSolver, gotSig, err := c.WinningSignature(ctx, draftID)
	require.NoError(t, err)
	assert.Equal(t, solver, gotSolver)
	assert.Equal(t, signature, gotSig)
}

func TestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, &logger.EmptyLogger{})
	_, err := c.FetchPendingDrafts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

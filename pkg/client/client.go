// Package client provides a Go client for the verification API, for solver
// and offerer tooling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/intentwire/verifier/pkg/logger"
	"github.com/intentwire/verifier/pkg/models"
)

// Client talks to one verification service instance.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new verification API client
func New(endpoint string, log logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     log,
	}
}

// Rejection is the decoded error body of a rejected request.
type Rejection struct {
	Message   string            `json:"error"`
	Reason    models.ReasonCode `json:"reason"`
	Transient bool              `json:"transient"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// Approval is the signature material returned for an approved intent.
type Approval struct {
	IntentID  string            `json:"intent_id"`
	Direction models.Direction  `json:"direction"`
	Scheme    models.SignScheme `json:"scheme"`
	Signature string            `json:"signature"`
	SignedAt  time.Time         `json:"signed_at"`
}

// RequestApproval asks the service to validate and sign the given intent.
// A rejected request returns a *Rejection; Transient rejections are worth
// retrying once the monitor catches up.
func (c *Client) RequestApproval(ctx context.Context, intentID string, direction models.Direction) (Approval, error) {
	var approval Approval
	err := c.post(ctx, "/approval", map[string]interface{}{
		"intent_id": intentID,
		"direction": direction,
	}, &approval)
	return approval, err
}

// PublicKeys fetches the verification key per signature scheme.
func (c *Client) PublicKeys(ctx context.Context) (map[models.SignScheme]string, error) {
	var keys map[models.SignScheme]string
	if err := c.get(ctx, "/public-key", &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// SubmitDraft publishes a draft intent for solvers to bid on and returns its id.
func (c *Client) SubmitDraft(ctx context.Context, draft models.DraftIntent) (string, error) {
	var resp struct {
		DraftID string `json:"draft_id"`
	}
	err := c.post(ctx, "/draft-intent", map[string]interface{}{
		"offerer":        draft.Offerer,
		"source_asset":   draft.SourceAsset,
		"source_amount":  draft.SourceAmount,
		"desired_asset":  draft.DesiredAsset,
		"desired_amount": draft.DesiredAmount,
		"expiry_time":    draft.ExpiryTime,
	}, &resp)
	return resp.DraftID, err
}

// FetchPendingDrafts gets the drafts still open for claiming, oldest first.
func (c *Client) FetchPendingDrafts(ctx context.Context) ([]models.DraftIntent, error) {
	var drafts []models.DraftIntent
	if err := c.get(ctx, "/draft-intents/pending", &drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

// ClaimDraft submits the solver's binding signature over a draft. Exactly one
// solver per draft wins the claim; losers get an already_claimed rejection.
func (c *Client) ClaimDraft(ctx context.Context, draftID, solver string, signature []byte) error {
	return c.post(ctx, "/draft-intent/"+draftID+"/signature", map[string]interface{}{
		"solver_addr": solver,
		"signature":   hexutil.Encode(signature),
	}, nil)
}

// ErrDraftPending is returned by WinningSignature while no solver has claimed
// the draft yet. Callers poll until the claim lands.
var ErrDraftPending = errors.New("draft not yet signed")

// WinningSignature fetches the claiming solver and signature for a draft once
// it has been claimed.
func (c *Client) WinningSignature(ctx context.Context, draftID string) (solver string, signature []byte, err error) {
	var resp struct {
		State     string `json:"state"`
		Solver    string `json:"solver"`
		Signature string `json:"signature"`
	}
	if err := c.get(ctx, "/draft-intent/"+draftID+"/signature", &resp); err != nil {
		return "", nil, err
	}
	if resp.State == string(models.DraftPending) {
		return "", nil, ErrDraftPending
	}
	signature, err = hexutil.Decode(resp.Signature)
	if err != nil {
		return "", nil, fmt.Errorf("malformed signature in response: %v", err)
	}
	return resp.Solver, signature, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %v", req.URL.Path, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		// Rejections carry a typed reason body; everything else is plain text.
		var rejection Rejection
		if err := json.Unmarshal(bodyBytes, &rejection); err == nil && rejection.Reason != models.ReasonNone {
			return &rejection
		}
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %v, body: %s", err, string(bodyBytes))
	}
	return nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

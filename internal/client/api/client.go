package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avaluotech/fieldsync/internal/common"
)

// TokenProvider supplies the bearer forwarded to the backend (and from there
// to the Blob Store).
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the reconciliation backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
}

// NewClient returns a backend client. timeout bounds each call; zero means
// 120s (a full batch may carry many photos on a slow uplink).
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring token: %w", err)
	}
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransient, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", common.ErrTokenStale, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status 400: %s", common.ErrValidation, string(b))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", common.ErrTransient, resp.StatusCode, string(b))
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(b))
	}
}

// SyncBatch submits forms and evidences in one call and returns the per-item
// breakdown. A non-nil result with Failed > 0 is not an error: the batch is
// inherently partial.
func (c *Client) SyncBatch(ctx context.Context, peritoID string, forms []FormSubmission, evidences []EvidenceSubmission) (*BatchResult, error) {
	if forms == nil {
		forms = []FormSubmission{}
	}
	if evidences == nil {
		evidences = []EvidenceSubmission{}
	}

	resp, err := c.post(ctx, "/sync/datos", batchRequest{
		PeritoID:    peritoID,
		Formularios: forms,
		Evidencias:  evidences,
	})
	if err != nil {
		return nil, fmt.Errorf("sync batch: %w", err)
	}
	defer resp.Body.Close()

	var result BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding batch result: %w", err)
	}
	return &result, nil
}

// RegisterEvidence upserts one confirmed remote reference into the Metadata
// Registry.
func (c *Client) RegisterEvidence(ctx context.Context, reg Registration) error {
	resp, err := c.post(ctx, "/sync/registro", reg)
	if err != nil {
		return fmt.Errorf("register evidence: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

// Package drive implements the Blob Store HTTP surface: path-addressed
// content PUTs, chunked upload sessions with Content-Range framing, folder
// listing/creation and best-effort sharing links.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avaluotech/fieldsync/internal/common"
)

// RootID addresses the drive root in listing and folder-creation calls.
const RootID = "root"

// Client talks to the Blob Store. All calls attach a bearer token from the
// TokenProvider and map HTTP failures onto the shared error taxonomy.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
}

// NewClient returns a Client for the given Blob Store base URL. timeout
// bounds every single HTTP call (chunk uploads included); zero means 60s.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring token: %w", err)
	}
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)

	return req, nil
}

// do executes the request and converts non-2xx statuses into sentinel-wrapped
// errors. The caller owns the response body on success.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransient, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	return nil, statusError(resp.StatusCode, string(b))
}

func statusError(code int, body string) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", common.ErrTokenStale, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", common.ErrorNotFound, code)
	case code == http.StatusConflict:
		return fmt.Errorf("%w: status %d", common.ErrConflict, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: status %d: %s", common.ErrTransient, code, body)
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: status %d: %s", common.ErrValidation, code, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", code, body)
	}
}

// contentURL builds the path-addressed URL for a drive item, e.g.
// <base>/root:/Peritajes/EXP-01/Fotos/a.jpg:/content.
func (c *Client) contentURL(remotePath, suffix string) string {
	escaped := (&url.URL{Path: remotePath}).EscapedPath()
	return fmt.Sprintf("%s/root:/%s:/%s", c.baseURL, strings.TrimLeft(escaped, "/"), suffix)
}

func (c *Client) itemURL(itemID, suffix string) string {
	if itemID == RootID {
		return fmt.Sprintf("%s/root/%s", c.baseURL, suffix)
	}
	return fmt.Sprintf("%s/items/%s/%s", c.baseURL, url.PathEscape(itemID), suffix)
}

// PutContent uploads the whole body in one request. Meant for payloads below
// the chunked-session threshold; the Uploader enforces the routing rule.
func (c *Client) PutContent(ctx context.Context, remotePath string, data []byte, contentType string) (*RemoteObject, error) {
	req, err := c.newRequest(ctx, http.MethodPut, c.contentURL(remotePath, "content"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	var obj RemoteObject
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("decoding put response: %w", err)
	}
	return &obj, nil
}

type uploadSessionResponse struct {
	UploadURL string `json:"uploadUrl"`
}

// CreateUploadSession opens a chunked upload session for remotePath and
// returns the session URL chunks must be PUT to.
func (c *Client) CreateUploadSession(ctx context.Context, remotePath string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.contentURL(remotePath, "createUploadSession"), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("creating upload session for %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	var session uploadSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decoding session response: %w", err)
	}
	if session.UploadURL == "" {
		return "", fmt.Errorf("session response missing uploadUrl")
	}
	return session.UploadURL, nil
}

// UploadChunk sends one byte range to an open session. start is the offset of
// the first byte in chunk, total the full payload size. The returned object
// is non-nil only for the final chunk (store answers 200/201 instead of 202).
func (c *Client) UploadChunk(ctx context.Context, sessionURL string, chunk []byte, start, total int64) (*RemoteObject, error) {
	req, err := c.newRequest(ctx, http.MethodPut, sessionURL, bytes.NewReader(chunk))
	if err != nil {
		return nil, err
	}
	end := start + int64(len(chunk)) - 1
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(chunk)))

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("chunk %d-%d: %w", start, end, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil, nil
	}

	var obj RemoteObject
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("decoding final chunk response: %w", err)
	}
	return &obj, nil
}

// ListChildren lists the direct children of a folder by item id. Use RootID
// for the drive root.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]Item, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.itemURL(parentID, "children"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", parentID, err)
	}
	defer resp.Body.Close()

	var listing struct {
		Value []Item `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}
	return listing.Value, nil
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           FolderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"`
}

// CreateFolder creates a child folder under parentID, failing with
// common.ErrConflict when a sibling with the same name already exists.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*FolderHandle, error) {
	body, err := json.Marshal(createFolderRequest{Name: name, ConflictBehavior: "fail"})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.itemURL(parentID, "children"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("creating folder %q under %s: %w", name, parentID, err)
	}
	defer resp.Body.Close()

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decoding folder response: %w", err)
	}
	return &FolderHandle{ID: item.ID, Name: item.Name}, nil
}

type createLinkRequest struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
}

// CreateLink requests a view sharing link for an item. Best-effort at the
// call sites: failures are logged, never fatal.
func (c *Client) CreateLink(ctx context.Context, itemID string) (string, error) {
	body, err := json.Marshal(createLinkRequest{Type: "view", Scope: "organization"})
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.itemURL(itemID, "createLink"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("creating link for %s: %w", itemID, err)
	}
	defer resp.Body.Close()

	var link struct {
		Link struct {
			WebURL string `json:"webUrl"`
		} `json:"link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return "", fmt.Errorf("decoding link response: %w", err)
	}
	return link.Link.WebURL, nil
}

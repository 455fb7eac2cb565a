package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/errdefs"
	"github.com/aman-app/aman/pkg/types"
)

// DefaultTimeout bounds every outbound call. A timeout is treated the
// same as being offline: the caller defers to the next trigger instead
// of blocking.
const DefaultTimeout = 3 * time.Second

// Client talks to the Aman server: the alert REST surface and the
// replication facade.
type Client struct {
	baseURL    string
	token      string
	collection string
	httpc      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithCollection overrides the replication collection name.
func WithCollection(name string) Option {
	return func(c *Client) { c.collection = name }
}

// New creates a client. token is the bearer credential attached to
// every call; the engine assumes it is valid or fails closed.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		collection: "checkins",
		httpc:      &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues an HTTP-shaped intent and decodes the JSON response into
// out (when non-nil). Errors carry errdefs codes derived from the
// response status; unreachable-network errors are TRANSIENT.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reqBody = bytes.NewReader(b)
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return errdefs.Wrap(errdefs.CodeValidation, err, "encode request body")
			}
			reqBody = bytes.NewReader(data)
		}
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeValidation, err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeTransient, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errdefs.Wrap(errdefs.CodeTransient, err, "decode response")
		}
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
		ID     string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	reason := body.Reason
	if reason == "" {
		reason = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errdefs.Authorization("%s", reason)
	case resp.StatusCode == http.StatusNotFound:
		return errdefs.NotFound("%s", reason)
	case resp.StatusCode == http.StatusConflict:
		return errdefs.ConflictResource(body.ID, "%s", reason)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return errdefs.Validation("%s", reason)
	case resp.StatusCode >= 500:
		return errdefs.Transient("server error: %s", reason)
	default:
		return errdefs.Transient("unexpected status: %s", resp.Status)
	}
}

// Alert REST surface

// CreateAlert posts a new alert and returns the server-assigned record.
func (c *Client) CreateAlert(ctx context.Context, in alerts.CreateInput) (*types.Alert, error) {
	var alert types.Alert
	if err := c.Do(ctx, http.MethodPost, "/alerts", in, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListAlerts fetches visible alerts with optional query filters.
func (c *Client) ListAlerts(ctx context.Context, query string) ([]*types.Alert, error) {
	path := "/alerts"
	if query != "" {
		path += "?" + query
	}
	var list []*types.Alert
	if err := c.Do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ReportAlert flags an alert as a suspected false alarm.
func (c *Client) ReportAlert(ctx context.Context, alertID string) (*types.Alert, error) {
	var alert types.Alert
	if err := c.Do(ctx, http.MethodPut, "/alerts/"+alertID+"/report", nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// DeleteAlert removes an alert owned by the caller.
func (c *Client) DeleteAlert(ctx context.Context, alertID string) error {
	return c.Do(ctx, http.MethodDelete, "/alerts/"+alertID, nil, nil)
}

// PushSnapshot uploads a derived artifact under its alert id.
func (c *Client) PushSnapshot(ctx context.Context, alertID string, snapshot []byte) error {
	return c.Do(ctx, http.MethodPut, "/alerts/"+alertID+"/snapshot", snapshot, nil)
}

func (c *Client) collPath(parts ...string) string {
	return "/" + c.collection + "/" + strings.Join(parts, "/")
}

// Replication verbs

// PutDoc upserts one canonical record.
func (c *Client) PutDoc(ctx context.Context, doc *types.CheckIn) (string, error) {
	var item struct {
		ID  string `json:"id"`
		Rev string `json:"rev"`
		OK  bool   `json:"ok"`
	}
	if err := c.Do(ctx, http.MethodPut, c.collPath(doc.ID), doc, &item); err != nil {
		return "", err
	}
	if !item.OK {
		return "", errdefs.Transient("write not acknowledged for %s", doc.ID)
	}
	return item.Rev, nil
}

// GetDoc reads one canonical record.
func (c *Client) GetDoc(ctx context.Context, docID string) (*types.CheckIn, error) {
	var doc types.CheckIn
	if err := c.Do(ctx, http.MethodGet, c.collPath(docID), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ChangesResult mirrors the facade's _changes response.
type ChangesResult struct {
	Results []ChangeRow `json:"results"`
	LastSeq int64       `json:"last_seq"`
}

// ChangeRow is one entry in the changes feed.
type ChangeRow struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	Changes []struct {
		Rev string `json:"rev"`
	} `json:"changes"`
}

// Changes fetches records modified after since.
func (c *Client) Changes(ctx context.Context, since int64) (*ChangesResult, error) {
	var res ChangesResult
	path := fmt.Sprintf("/%s/_changes?since=%d", c.collection, since)
	if err := c.Do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BulkGetResult mirrors the facade's _bulk_get response.
type BulkGetResult struct {
	Results []BulkGetRow `json:"results"`
}

// BulkGetRow carries the fetched docs for one requested id.
type BulkGetRow struct {
	ID   string       `json:"id"`
	Docs []BulkGetDoc `json:"docs"`
}

// BulkGetDoc holds either the fetched record or nothing for a miss.
type BulkGetDoc struct {
	OK *types.CheckIn `json:"ok,omitempty"`
}

// BulkGet fetches a batch of records by id.
func (c *Client) BulkGet(ctx context.Context, ids []string) (*BulkGetResult, error) {
	docs := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, map[string]string{"id": id})
	}
	var res BulkGetResult
	err := c.Do(ctx, http.MethodPost, c.collPath("_bulk_get"), map[string]interface{}{"docs": docs}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// PutCheckpoint stores an opaque checkpoint on the server.
func (c *Client) PutCheckpoint(ctx context.Context, checkpointID string, body interface{}) error {
	return c.Do(ctx, http.MethodPut, c.collPath("_local", checkpointID), body, nil)
}

// GetCheckpoint reads a checkpoint back into out.
func (c *Client) GetCheckpoint(ctx context.Context, checkpointID string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, c.collPath("_local", checkpointID), nil, out)
}

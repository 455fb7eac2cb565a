package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-app/aman/pkg/alerts"
	"github.com/aman-app/aman/pkg/auth"
	"github.com/aman-app/aman/pkg/replicator"
	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir(), "api-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := alerts.NewEngine(store, 0)
	facade := replicator.NewFacade(store)
	verifier := auth.StaticVerifier{"token-u1": "u1", "token-u2": "u2"}

	srv := httptest.NewServer(NewServer(engine, facade, store, verifier).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := doReq(t, "GET", srv.URL+"/alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doReq(t, "GET", srv.URL+"/alerts", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	in := alerts.CreateInput{Category: "emergency", Title: "Fire", Latitude: 36.81, Longitude: 10.18}

	// Create.
	resp := doReq(t, "POST", srv.URL+"/alerts", "token-u1", in)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created types.Alert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "u1", created.UserID)

	// Duplicate inside the window: conflict, immediately.
	resp = doReq(t, "POST", srv.URL+"/alerts", "token-u2", in)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Listing with filters.
	resp = doReq(t, "GET", srv.URL+"/alerts?category=emergency&bbox=10,36,11,37", "token-u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []*types.Alert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)

	// Report by another user.
	resp = doReq(t, "PUT", fmt.Sprintf("%s/alerts/%s/report", srv.URL, created.ID), "token-u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Delete by a non-owner is forbidden.
	resp = doReq(t, "DELETE", srv.URL+"/alerts/"+created.ID, "token-u2", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Delete by the owner succeeds; a second delete is not found.
	resp = doReq(t, "DELETE", srv.URL+"/alerts/"+created.ID, "token-u1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doReq(t, "DELETE", srv.URL+"/alerts/"+created.ID, "token-u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReplicationRoutesOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	doc := map[string]interface{}{
		"_id": types.CheckInID("u1"), "userId": "u1", "status": "safe",
		"lat": 36.81, "lng": 10.18,
	}

	// Push via _bulk_docs.
	resp := doReq(t, "POST", srv.URL+"/checkins/_bulk_docs", "token-u1",
		map[string]interface{}{"docs": []interface{}{doc}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var results []replicator.BulkDocsItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	require.True(t, results[0].OK)

	// Writing another owner's record is rejected per-doc.
	resp = doReq(t, "POST", srv.URL+"/checkins/_bulk_docs", "token-u2",
		map[string]interface{}{"docs": []interface{}{doc}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, "forbidden", results[0].Error)

	// Changes feed sees the write.
	resp = doReq(t, "GET", srv.URL+"/checkins/_changes?since=0", "token-u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var changes replicator.ChangesResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&changes))
	require.Len(t, changes.Results, 1)
	assert.Equal(t, types.CheckInID("u1"), changes.Results[0].ID)

	// Checkpoint roundtrip.
	resp = doReq(t, "PUT", srv.URL+"/checkins/_local/device-1", "token-u1",
		map[string]int64{"last_seq": changes.LastSeq})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = doReq(t, "GET", srv.URL+"/checkins/_local/device-1", "token-u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Collection info.
	resp = doReq(t, "GET", srv.URL+"/checkins", "token-u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info replicator.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, 1, info.DocCount)
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	resp := doReq(t, "GET", srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

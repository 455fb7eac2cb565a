package replicator

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-app/aman/pkg/storage"
	"github.com/aman-app/aman/pkg/types"
)

func newTestFacade(t *testing.T) (*Facade, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir(), "facade-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewFacade(store), store
}

func checkInDoc(userID string, status types.CheckInStatus) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"_id":%q,"userId":%q,"status":%q,"lat":36.81,"lng":10.18}`,
		types.CheckInID(userID), userID, status))
}

func TestBulkDocsAcceptsOwnedDoc(t *testing.T) {
	f, store := newTestFacade(t)

	results := f.BulkDocs("u1", []json.RawMessage{checkInDoc("u1", types.CheckInSafe)})
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, types.CheckInID("u1"), results[0].ID)
	assert.NotEmpty(t, results[0].Rev)

	stored, err := store.GetCheckIn(types.CheckInID("u1"))
	require.NoError(t, err)
	assert.Equal(t, results[0].Rev, stored.Rev)
	assert.False(t, stored.Synced, "synced flag must never be trusted from a peer")
}

func TestBulkDocsRejectsForeignDocWithoutAbortingBatch(t *testing.T) {
	f, _ := newTestFacade(t)

	results := f.BulkDocs("u1", []json.RawMessage{
		checkInDoc("u2", types.CheckInSafe), // not owned by caller
		checkInDoc("u1", types.CheckInHelp),
		json.RawMessage(`{broken`),
	})
	require.Len(t, results, 3, "results must be in input order, one per doc")

	assert.Equal(t, "forbidden", results[0].Error)
	assert.True(t, results[1].OK)
	assert.Equal(t, "bad_request", results[2].Error)
}

func TestRevisionReplacedOnEveryWrite(t *testing.T) {
	f, _ := newTestFacade(t)

	first := f.BulkDocs("u1", []json.RawMessage{checkInDoc("u1", types.CheckInSafe)})[0]
	second := f.BulkDocs("u1", []json.RawMessage{checkInDoc("u1", types.CheckInHelp)})[0]

	require.True(t, first.OK)
	require.True(t, second.OK)
	assert.NotEqual(t, first.Rev, second.Rev)
	// Generation bumps monotonically.
	assert.Regexp(t, `^1-`, first.Rev)
	assert.Regexp(t, `^2-`, second.Rev)
}

func TestRevsDiff(t *testing.T) {
	f, _ := newTestFacade(t)
	applied := f.BulkDocs("u1", []json.RawMessage{checkInDoc("u1", types.CheckInSafe)})[0]
	docID := types.CheckInID("u1")

	t.Run("no stored record means all claimed revs missing", func(t *testing.T) {
		diff, err := f.RevsDiff(map[string][]string{"checkin_ghost": {"1-aaa", "2-bbb"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"1-aaa", "2-bbb"}, diff["checkin_ghost"]["missing"])
	})

	t.Run("matching rev reports nothing missing", func(t *testing.T) {
		diff, err := f.RevsDiff(map[string][]string{docID: {applied.Rev}})
		require.NoError(t, err)
		_, present := diff[docID]
		assert.False(t, present)
	})

	t.Run("stale rev reported missing", func(t *testing.T) {
		diff, err := f.RevsDiff(map[string][]string{docID: {"1-stale", applied.Rev}})
		require.NoError(t, err)
		assert.Equal(t, []string{"1-stale"}, diff[docID]["missing"])
	})
}

func TestChangesSince(t *testing.T) {
	f, store := newTestFacade(t)
	base := time.Now()

	old := &types.CheckIn{ID: types.CheckInID("u1"), UserID: "u1", Rev: "3-aaa", UpdatedAt: base.Add(-time.Hour)}
	fresh := &types.CheckIn{ID: types.CheckInID("u2"), UserID: "u2", Rev: "1-bbb", UpdatedAt: base}
	require.NoError(t, store.PutCheckIn(old))
	require.NoError(t, store.PutCheckIn(fresh))

	res, err := f.Changes(base.Add(-time.Minute).UnixMilli())
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, types.CheckInID("u2"), res.Results[0].ID)
	assert.Equal(t, "1-bbb", res.Results[0].Changes[0].Rev)
	assert.Equal(t, base.UnixMilli(), res.LastSeq)

	// Nothing newer: empty results, last_seq echoes since.
	res, err = f.Changes(base.UnixMilli())
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, base.UnixMilli(), res.LastSeq)
}

func TestBulkGetReportsMissingPerID(t *testing.T) {
	f, _ := newTestFacade(t)
	f.BulkDocs("u1", []json.RawMessage{checkInDoc("u1", types.CheckInSafe)})

	res, err := f.BulkGet([]string{types.CheckInID("u1"), "checkin_ghost"})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	assert.NotNil(t, res.Results[0].Docs[0].OK)
	assert.Equal(t, "u1", res.Results[0].Docs[0].OK.UserID)

	require.NotNil(t, res.Results[1].Docs[0].Error)
	assert.Equal(t, "not_found", res.Results[1].Docs[0].Error.Error)
}

func TestCheckpointOpaqueRoundtrip(t *testing.T) {
	f, _ := newTestFacade(t)

	body := []byte(`{"last_seq":1234,"device":"phone-1"}`)
	ack, err := f.PutCheckpoint("phone-1", body)
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.Equal(t, "_local/phone-1", ack.ID)

	got, err := f.GetCheckpoint("phone-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(got))
}

func TestCollectionInfo(t *testing.T) {
	f, _ := newTestFacade(t)
	f.BulkDocs("u1", []json.RawMessage{checkInDoc("u1", types.CheckInSafe)})

	info, err := f.CollectionInfo("checkins")
	require.NoError(t, err)
	assert.Equal(t, "checkins", info.DBName)
	assert.Equal(t, 1, info.DocCount)
	assert.Greater(t, info.UpdateSeq, int64(0))
}

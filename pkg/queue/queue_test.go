package queue

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-app/aman/pkg/types"
)

func action(i int) *types.QueuedAction {
	return &types.QueuedAction{
		Kind:     types.ActionCreateAlert,
		Endpoint: "/alerts",
		Method:   "POST",
		Data:     []byte(fmt.Sprintf(`{"title":"alert %d"}`, i)),
	}
}

func TestEnqueueAssignsPlaceholderID(t *testing.T) {
	q, err := Open(NewMemSubstrate(0))
	require.NoError(t, err)

	id := q.Enqueue(action(1))
	assert.True(t, types.IsPlaceholderID(id))
	assert.Equal(t, 1, q.Len())
}

func TestQueueSurvivesRestart(t *testing.T) {
	sub, err := NewBoltSubstrate(t.TempDir(), "queue.db")
	require.NoError(t, err)

	q, err := Open(sub)
	require.NoError(t, err)
	id := q.Enqueue(action(1))

	// Simulate a process restart: reload queue state from storage.
	reloaded, err := Open(sub)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	items := reloaded.List()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, types.ActionCreateAlert, items[0].Kind)
	assert.Equal(t, "/alerts", items[0].Endpoint)
}

func TestMarkDoneRemovesItem(t *testing.T) {
	sub := NewMemSubstrate(0)
	q, err := Open(sub)
	require.NoError(t, err)

	id1 := q.Enqueue(action(1))
	id2 := q.Enqueue(action(2))

	q.MarkDone(id1)

	items := q.List()
	require.Len(t, items, 1)
	assert.Equal(t, id2, items[0].ID)

	// Removal is persisted, not just in-memory.
	reloaded, err := Open(sub)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestQuotaTruncatesToMostRecent(t *testing.T) {
	// Size the substrate so a handful of items fit but not many.
	one, _ := json.Marshal([]*types.QueuedAction{action(0)})
	capacity := len(one) * 4

	q, err := Open(NewMemSubstrate(capacity), WithKeepOnQuota(2))
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 10; i++ {
		// Enqueue must never fail for a full-but-recoverable store.
		ids = append(ids, q.Enqueue(action(i)))
	}

	items := q.List()
	require.NotEmpty(t, items)
	assert.LessOrEqual(t, len(items), 3) // keep + the new item at most

	// Whatever survived is the most recent tail.
	last := items[len(items)-1]
	assert.Equal(t, ids[len(ids)-1], last.ID)
}

func TestOpenMissingKeyMeansEmptyQueue(t *testing.T) {
	q, err := Open(NewMemSubstrate(0))
	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.List())
}

package updater_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muniapi/internal/updater"
	"muniapi/pkg/domain"
)

func page(t *testing.T, local string) domain.ExternalID {
	t.Helper()
	id, err := domain.NewExternalID(domain.EntityPage, "mwp", local)
	require.NoError(t, err)
	return id
}

func targets(reqs []updater.Request) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Target.LocalID)
	}
	return out
}

func TestQueue_FIFOWithDedup(t *testing.T) {
	q := updater.NewQueue()
	assert.True(t, q.Push(updater.NewRequest(page(t, "a"))))
	assert.True(t, q.Push(updater.NewRequest(page(t, "b"))))
	assert.False(t, q.Push(updater.NewRequest(page(t, "a"))), "duplicate is a no-op")

	assert.Equal(t, []string{"a", "b"}, targets(q.Snapshot()))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_PriorityMovesToFront(t *testing.T) {
	q := updater.NewQueue()
	q.Push(updater.NewRequest(page(t, "a")))
	q.Push(updater.NewRequest(page(t, "b")))
	q.Push(updater.NewRequest(page(t, "c")))

	q.Push(updater.Request{Target: page(t, "c"), Priority: true})
	assert.Equal(t, []string{"c", "a", "b"}, targets(q.Snapshot()))

	q.Push(updater.Request{Target: page(t, "d"), Priority: true})
	assert.Equal(t, []string{"d", "c", "a", "b"}, targets(q.Snapshot()))
	assert.Equal(t, 4, q.Len(), "promotion never duplicates")
}

func TestQueue_NonPriorityDoesNotDemote(t *testing.T) {
	q := updater.NewQueue()
	q.Push(updater.NewRequest(page(t, "a")))
	q.Push(updater.Request{Target: page(t, "b"), Priority: true})
	q.Push(updater.NewRequest(page(t, "b")))

	assert.Equal(t, []string{"b", "a"}, targets(q.Snapshot()))
}

func TestQueue_PopOrderAndEmpty(t *testing.T) {
	q := updater.NewQueue()
	q.Push(updater.NewRequest(page(t, "a")))
	q.Push(updater.NewRequest(page(t, "b")))

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", first.Target.LocalID)

	// a popped target may be queued again
	assert.True(t, q.Push(updater.NewRequest(page(t, "a"))))

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", second.Target.LocalID)
	third, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", third.Target.LocalID)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_SnapshotIsACopy(t *testing.T) {
	q := updater.NewQueue()
	q.Push(updater.NewRequest(page(t, "a")))
	snap := q.Snapshot()
	snap[0].Priority = true

	front, _ := q.Pop()
	assert.False(t, front.Priority)
}

func TestRequest_JSONKeepsParent(t *testing.T) {
	org, err := domain.NewExternalID(domain.EntityOrganization, "mwp", "7")
	require.NoError(t, err)
	in := updater.Request{Target: page(t, "42"), Priority: true, Parent: &org}

	data, err := in.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":"page/mwp/42","priority":true,"parent":"organization/mwp/7"}`, string(data))

	var out updater.Request
	require.NoError(t, out.UnmarshalJSON(data))
	assert.Equal(t, in.Target, out.Target)
	require.NotNil(t, out.Parent)
	assert.Equal(t, org, *out.Parent)

	assert.Error(t, out.UnmarshalJSON([]byte(`{"target":"widget/mwp/1"}`)))
}

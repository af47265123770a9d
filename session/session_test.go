package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agency/core"
	"github.com/hupe1980/agency/internal/testutil"
)

// Interface compliance (compile-time assertion)
var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ core.SessionStore = (*BoltStore)(nil)
)

func stores(t *testing.T) map[string]core.SessionStore {
	t.Helper()

	bs, err := NewBoltStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]core.SessionStore{
		"memory": NewInMemoryStore(),
		"bolt":   bs,
	}
}

func TestStores_AppendGetListDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get("s1")
			assert.ErrorIs(t, err, core.ErrSessionNotFound)

			first := core.FinalResult{RequestID: "r1", Response: "hello", Status: core.StatusDone, HopsUsed: 1, FinalAgent: "Planner"}
			second := core.FinalResult{
				RequestID: "r2",
				Status:    core.StatusDone,
				BranchResults: []core.BranchResult{
					{Target: "Planner", Success: true, Response: "plan"},
					{Target: "Critic", Error: "timeout"},
				},
				Transcript: []core.TranscriptEntry{{Hop: 1, State: core.StateBranching, Agent: "Critic", Kind: core.EntryBranch, Text: "x"}},
			}

			require.NoError(t, store.AppendResult("s1", first))
			require.NoError(t, store.AppendResult("s1", second))
			require.NoError(t, store.AppendResult("s0", first))

			sess, err := store.Get("s1")
			require.NoError(t, err)
			results := sess.GetResults()
			require.Len(t, results, 2)
			assert.Equal(t, "hello", results[0].Response)
			assert.Equal(t, second.BranchResults, results[1].BranchResults)
			assert.Equal(t, core.StateBranching, results[1].Transcript[0].State)
			assert.True(t, results[1].PartiallyAnswered())
			assert.False(t, sess.Updated.Before(sess.Created))

			ids, err := store.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"s0", "s1"}, ids)

			require.NoError(t, store.Delete("s0"))
			assert.ErrorIs(t, store.Delete("s0"), core.ErrSessionNotFound)

			ids, err = store.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"s1"}, ids)
		})
	}
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.AppendResult("s", testutil.NewSessionBuilder("s").Done("r1", "a").Build().GetResults()[0]))

	sess, err := store.Get("s")
	require.NoError(t, err)
	sess.AddResult(core.FinalResult{RequestID: "local"})

	again, err := store.Get("s")
	require.NoError(t, err)
	assert.Len(t, again.GetResults(), 1)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	bs, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, bs.AppendResult("s", core.FinalResult{RequestID: "r", Response: "kept", Status: core.StatusDone}))
	require.NoError(t, bs.Close())

	bs, err = NewBoltStore(path)
	require.NoError(t, err)
	defer bs.Close()

	sess, err := bs.Get("s")
	require.NoError(t, err)
	last, ok := sess.Last()
	require.True(t, ok)
	assert.Equal(t, "kept", last.Response)
}

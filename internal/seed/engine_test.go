package seed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
	"github.com/agentic-research/regionseed/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hierarchy(t *testing.T) *api.Hierarchy {
	t.Helper()
	h := api.DefaultHierarchy()
	require.NoError(t, h.Validate())
	return h
}

func prov(id, name string) record.Source {
	return record.Source{ID: id, Name: name, Code: id + "-code"}
}

func child(id, name, parent string) record.Source {
	return record.Source{ID: id, Name: name, Code: id + "-code", ParentID: parent}
}

// chain is the smallest full hierarchy: one record per level.
func chain() [][]record.Source {
	return [][]record.Source{
		{prov("r1", "Zhejiang")},
		{child("m1", "Hangzhou", "r1")},
		{child("l1", "Xihu", "m1")},
	}
}

func findAll(t *testing.T, s store.Store, level api.Level) []record.Stored {
	t.Helper()
	got, err := s.FindAll(context.Background(), level)
	require.NoError(t, err)
	return got
}

// assertLinked checks that every record at level i > 0 points at an ID
// present at level i-1.
func assertLinked(t *testing.T, h *api.Hierarchy, s store.Store) {
	t.Helper()
	for i := 1; i < len(h.Levels); i++ {
		parents := make(map[record.ID]bool)
		for _, p := range findAll(t, s, h.Levels[i-1]) {
			parents[p.ID] = true
		}
		for _, c := range findAll(t, s, h.Levels[i]) {
			assert.True(t, parents[c.ParentID], "%s %q has dangling parent %s", h.Levels[i].Name, c.Name, c.ParentID.Hex())
		}
	}
}

func TestEngine_Chain(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()

	report, err := NewEngine(h, mem, nil).Run(context.Background(), chain())
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.True(t, report.Succeeded())
	assert.Equal(t, "seeded province=1 city=1 county=1", report.StatusLine())

	provinces := findAll(t, mem, h.Levels[0])
	cities := findAll(t, mem, h.Levels[1])
	counties := findAll(t, mem, h.Levels[2])
	require.Len(t, provinces, 1)
	require.Len(t, cities, 1)
	require.Len(t, counties, 1)

	assert.False(t, provinces[0].HasParent())
	assert.Equal(t, "Zhejiang", provinces[0].Name)
	assert.Equal(t, "r1-code", provinces[0].Code)
	assert.Equal(t, provinces[0].ID, cities[0].ParentID)
	assert.Equal(t, cities[0].ID, counties[0].ParentID)
	assert.Equal(t, "Xihu", counties[0].Name)

	for _, st := range report.Stages {
		assert.Equal(t, PhaseInserted, st.Phase, st.Level)
		assert.Equal(t, 1, st.Written, st.Level)
		assert.Zero(t, st.Missed, st.Level)
	}
	assert.Equal(t, 1, report.Stage("city").ReadBack)
	assert.Zero(t, report.Stage("county").ReadBack, "leaf level is not read back")
}

func TestEngine_Fanout(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()

	datasets := [][]record.Source{
		{prov("p1", "Zhejiang"), prov("p2", "Jiangsu")},
		{child("c1", "Hangzhou", "p1"), child("c2", "Ningbo", "p1"), child("c3", "Nanjing", "p2")},
		{child("k1", "Xihu", "c1"), child("k2", "Yinzhou", "c2"), child("k3", "Xuanwu", "c3"), child("k4", "Gulou", "c3")},
	}
	report, err := NewEngine(h, mem, nil).Run(context.Background(), datasets)
	require.NoError(t, err)
	assert.Equal(t, "seeded province=2 city=3 county=4", report.StatusLine())
	assertLinked(t, h, mem)

	byName := make(map[string]record.Stored)
	for _, level := range h.Levels {
		for _, r := range findAll(t, mem, level) {
			byName[r.Name] = r
		}
	}
	assert.Equal(t, byName["Jiangsu"].ID, byName["Nanjing"].ParentID)
	assert.Equal(t, byName["Nanjing"].ID, byName["Gulou"].ParentID)
	assert.Equal(t, byName["Ningbo"].ID, byName["Yinzhou"].ParentID)
}

func TestEngine_OrphansExcludedTransitively(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()

	datasets := [][]record.Source{
		{prov("p1", "Zhejiang")},
		{child("c1", "Hangzhou", "p1"), child("c9", "Nowhere", "p404")},
		{child("k1", "Xihu", "c1"), child("k9", "Lost", "c9"), child("k8", "Adrift", "")},
	}
	report, err := NewEngine(h, mem, nil).Run(context.Background(), datasets)
	require.NoError(t, err)

	city := report.Stage("city")
	assert.Equal(t, 2, city.Sources)
	assert.Equal(t, 1, city.Built)
	assert.Equal(t, 1, city.Missed)
	assert.Equal(t, []string{"c9"}, city.MissedIDs)

	county := report.Stage("county")
	assert.Equal(t, 3, county.Sources)
	assert.Equal(t, 1, county.Written)
	assert.Equal(t, 2, county.Missed)
	assert.Equal(t, []string{"k9", "k8"}, county.MissedIDs)

	assert.Equal(t, 1, mem.Count("cities"))
	assert.Equal(t, 1, mem.Count("counties"))
	assertLinked(t, h, mem)
}

func TestEngine_MissedIDsCapped(t *testing.T) {
	h := hierarchy(t)
	cities := make([]record.Source, 0, 30)
	for i := 0; i < 30; i++ {
		cities = append(cities, child(fmt.Sprintf("c%d", i), fmt.Sprintf("City %d", i), "missing"))
	}
	report, err := NewEngine(h, store.NewMemory(), nil).Run(context.Background(),
		[][]record.Source{{prov("p1", "Zhejiang")}, cities, nil})
	require.NoError(t, err)

	city := report.Stage("city")
	assert.Equal(t, 30, city.Missed)
	assert.Len(t, city.MissedIDs, maxMissedIDs)
	assert.Equal(t, "c0", city.MissedIDs[0])
}

func TestEngine_RunTwiceDoublesEveryLevel(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()
	datasets := [][]record.Source{
		{prov("p1", "Zhejiang"), prov("p2", "Jiangsu")},
		{child("c1", "Hangzhou", "p1"), child("c2", "Nanjing", "p2")},
		{child("k1", "Xihu", "c1"), child("k2", "Xuanwu", "c2")},
	}

	for run := 1; run <= 2; run++ {
		report, err := NewEngine(h, mem, nil).Run(context.Background(), datasets)
		require.NoError(t, err)
		assert.Equal(t, "seeded province=2 city=2 county=2", report.StatusLine(), "run %d", run)
		assert.Equal(t, 2*run, mem.Count("provinces"))
		assert.Equal(t, 2*run, mem.Count("cities"))
		assert.Equal(t, 2*run, mem.Count("counties"))
	}
	assertLinked(t, h, mem)

	// Each run's children hang off that run's parents: every parent has
	// exactly one child per source relationship.
	children := make(map[record.ID]int)
	for _, c := range findAll(t, mem, h.Levels[1]) {
		children[c.ParentID]++
	}
	for _, p := range findAll(t, mem, h.Levels[0]) {
		assert.Equal(t, 1, children[p.ID], p.Name)
	}
}

func TestEngine_NameCollisionResolvesToFirst(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()

	datasets := [][]record.Source{
		{prov("p1", "Twin"), prov("p2", "Twin")},
		{child("c1", "Alpha", "p1"), child("c2", "Beta", "p2")},
		nil,
	}
	report, err := NewEngine(h, mem, nil).Run(context.Background(), datasets)
	require.NoError(t, err)

	provinces := findAll(t, mem, h.Levels[0])
	require.Len(t, provinces, 2)
	cities := findAll(t, mem, h.Levels[1])
	require.Len(t, cities, 1)
	assert.Equal(t, "Alpha", cities[0].Name)
	assert.Equal(t, provinces[0].ID, cities[0].ParentID)

	assert.Equal(t, []string{"c2"}, report.Stage("city").MissedIDs)
	assert.Equal(t, PhaseInserted, report.Stage("county").Phase)
	assert.Zero(t, report.Stage("county").Written)
}

// reversedStore returns read-backs in reverse insertion order.
type reversedStore struct {
	*store.Memory
}

func (s reversedStore) FindAll(ctx context.Context, level api.Level) ([]record.Stored, error) {
	got, err := s.Memory.FindAll(ctx, level)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(got)-1; i < j; i, j = i+1, j-1 {
		got[i], got[j] = got[j], got[i]
	}
	return got, nil
}

func TestEngine_NameCollisionIgnoresReadBackOrder(t *testing.T) {
	h := hierarchy(t)
	datasets := [][]record.Source{
		{prov("p1", "Twin"), prov("p2", "Twin")},
		{child("c1", "Alpha", "p1")},
		nil,
	}

	for name, s := range map[string]store.Store{
		"insertion order": store.NewMemory(),
		"reversed order":  reversedStore{store.NewMemory()},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewEngine(h, s, nil).Run(context.Background(), datasets)
			require.NoError(t, err)

			codes := make(map[record.ID]string)
			for _, p := range findAll(t, s, h.Levels[0]) {
				codes[p.ID] = p.Code
			}
			cities := findAll(t, s, h.Levels[1])
			require.Len(t, cities, 1)
			assert.Equal(t, "p1-code", codes[cities[0].ParentID])
		})
	}
}

func TestEngine_UsesStoreAssignedIDs(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()
	mem.ReassignIDs = true

	var assigned []record.ID
	e := NewEngine(h, mem, nil)
	e.NewID = func() record.ID {
		id := record.NewID()
		assigned = append(assigned, id)
		return id
	}

	_, err := e.Run(context.Background(), chain())
	require.NoError(t, err)
	assertLinked(t, h, mem)

	provinces := findAll(t, mem, h.Levels[0])
	require.Len(t, provinces, 1)
	assert.NotContains(t, assigned, provinces[0].ID)
}

func TestEngine_RootInsertFailureStopsRun(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()
	cause := fmt.Errorf("%w: provinces: schema validation", store.ErrRejected)
	mem.FailInsert("provinces", cause)

	report, err := NewEngine(h, mem, nil).Run(context.Background(), chain())
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "province", se.Level)
	assert.Equal(t, OpInsert, se.Op)
	assert.ErrorIs(t, err, ErrWriteRejected)
	assert.ErrorIs(t, err, store.ErrRejected)
	assert.NotErrorIs(t, err, ErrReadBack)

	require.NotNil(t, report)
	assert.Equal(t, err, report.Err())
	assert.False(t, report.Succeeded())
	assert.Equal(t, PhaseFailed, report.Stage("province").Phase)
	assert.Equal(t, PhasePending, report.Stage("city").Phase)
	assert.Equal(t, PhasePending, report.Stage("county").Phase)
	assert.Equal(t, "stage province failed: insert: write rejected: provinces: schema validation", report.StatusLine())

	assert.Zero(t, mem.Count("provinces"))
	assert.Zero(t, mem.Count("cities"))
	assert.Zero(t, mem.Count("counties"))
}

func TestEngine_MiddleInsertFailureKeepsEarlierLevels(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()
	mem.FailInsert("cities", errors.New("disk full"))

	report, err := NewEngine(h, mem, nil).Run(context.Background(), chain())
	require.ErrorIs(t, err, ErrWriteRejected)
	assert.Equal(t, "stage city failed: insert: disk full", report.StatusLine())

	assert.Equal(t, PhaseInserted, report.Stage("province").Phase)
	assert.Equal(t, PhaseFailed, report.Stage("city").Phase)
	assert.Equal(t, PhasePending, report.Stage("county").Phase)
	assert.Equal(t, 1, mem.Count("provinces"), "no rollback")
	assert.Zero(t, mem.Count("counties"))
}

func TestEngine_ReadBackFailureStopsRun(t *testing.T) {
	h := hierarchy(t)
	mem := store.NewMemory()
	mem.FailFind("cities", fmt.Errorf("%w: connection reset", store.ErrUnavailable))

	report, err := NewEngine(h, mem, nil).Run(context.Background(), chain())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadBack)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrWriteRejected)

	city := report.Stage("city")
	assert.Equal(t, PhaseFailed, city.Phase)
	assert.Equal(t, 1, city.Written)
	assert.Equal(t, PhasePending, report.Stage("county").Phase)
	assert.Equal(t, 1, mem.Count("cities"))
	assert.Zero(t, mem.Count("counties"))
}

func TestEngine_EmptyLevels(t *testing.T) {
	h := hierarchy(t)

	t.Run("empty middle level", func(t *testing.T) {
		mem := store.NewMemory()
		datasets := [][]record.Source{
			{prov("p1", "Zhejiang")},
			nil,
			{child("k1", "Xihu", "c1")},
		}
		report, err := NewEngine(h, mem, nil).Run(context.Background(), datasets)
		require.NoError(t, err)
		assert.True(t, report.Succeeded())
		assert.Equal(t, "seeded province=1 city=0 county=0", report.StatusLine())
		assert.Equal(t, 1, report.Stage("county").Missed)
	})

	t.Run("empty input", func(t *testing.T) {
		mem := store.NewMemory()
		report, err := NewEngine(h, mem, nil).Run(context.Background(), make([][]record.Source, 3))
		require.NoError(t, err)
		assert.True(t, report.Succeeded())
		assert.Equal(t, "seeded province=0 city=0 county=0", report.StatusLine())
	})
}

func TestEngine_DatasetCountMismatch(t *testing.T) {
	_, err := NewEngine(hierarchy(t), store.NewMemory(), nil).Run(context.Background(), chain()[:2])
	assert.ErrorContains(t, err, "got 2 datasets for 3 levels")
}

func TestEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mem := store.NewMemory()

	report, err := NewEngine(hierarchy(t), mem, nil).Run(ctx, chain())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseFailed, report.Stage("province").Phase)
	assert.Zero(t, mem.Count("provinces"))
}

func TestEngine_WrittenNeverExceedsSources(t *testing.T) {
	h := hierarchy(t)
	datasets := [][]record.Source{
		{prov("p1", "A"), prov("p2", "B"), prov("p3", "A")},
		{child("c1", "C1", "p1"), child("c2", "C2", "p2"), child("c3", "C3", "p3"), child("c4", "C4", "p9")},
		{child("k1", "K1", "c1"), child("k2", "K2", "c3"), child("k3", "K3", "c4"), child("k4", "K4", "c2")},
	}
	mem := store.NewMemory()
	report, err := NewEngine(h, mem, nil).Run(context.Background(), datasets)
	require.NoError(t, err)

	for _, st := range report.Stages {
		assert.LessOrEqual(t, st.Written, st.Sources, st.Level)
		assert.Equal(t, st.Sources, st.Written+st.Missed, st.Level)
	}
	assertLinked(t, h, mem)

	checks, err := Check(h, datasets)
	require.NoError(t, err)
	for i, c := range checks {
		assert.Equal(t, report.Stages[i].Written, c.Resolved, c.Level)
		assert.Equal(t, report.Stages[i].Missed, c.Missed, c.Level)
	}
}

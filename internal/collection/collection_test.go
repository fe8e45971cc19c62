package collection

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollection(t *testing.T) (*Collection, *[]feedback.ChangeData) {
	t.Helper()
	bus := feedback.NewEventBus()
	var events []feedback.ChangeData
	bus.Subscribe(feedback.EventRecordsChanged, func(e feedback.Event) {
		events = append(events, e.Data.(feedback.ChangeData))
	})
	return New("annotations", annotation.KindAnnotation, bus), &events
}

func times(recs []annotation.Record) []float64 {
	out := make([]float64, len(recs))
	for i, r := range recs {
		out[i] = r.Time
	}
	return out
}

func TestInsertKeepsTimeOrder(t *testing.T) {
	c, events := newTestCollection(t)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		c.Insert(annotation.NewAnnotation(float64(rng.Intn(10000)), 1, "w"))
	}

	snap := c.Snapshot()
	require.Len(t, snap, 200)
	for i := 1; i < len(snap); i++ {
		assert.LessOrEqual(t, snap[i-1].Time, snap[i].Time)
	}
	assert.Len(t, *events, 200)
	assert.True(t, (*events)[0].Full)
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	c, _ := newTestCollection(t)
	c.Insert(annotation.NewAnnotation(100, 1, "zebra"))
	c.Insert(annotation.NewAnnotation(100, 2, "apple"))
	c.Insert(annotation.NewAnnotation(50, 3, "mid"))

	snap := c.Snapshot()
	assert.Equal(t, []string{"mid", "zebra", "apple"}, []string{snap[0].Text, snap[1].Text, snap[2].Text})
}

func TestInsertDoesNotDeduplicate(t *testing.T) {
	c, _ := newTestCollection(t)
	r := annotation.NewAnnotation(100, 1, "cat")
	c.Insert(r)
	c.Insert(r)
	assert.Equal(t, 2, c.Len())
}

func TestBulkInsertAllowsDuplicates(t *testing.T) {
	c, events := newTestCollection(t)
	r := annotation.NewAnnotation(100, 1, "cat")
	c.Insert(r)

	require.NoError(t, c.BulkInsert([]annotation.Record{r, r, annotation.NewAnnotation(5, 2, "dog")}))
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, []float64{5, 100, 100, 100}, times(c.Snapshot()))
	assert.Len(t, *events, 2, "one event per bulk insert")
}

func TestBulkInsertNil(t *testing.T) {
	c, _ := newTestCollection(t)
	err := c.BulkInsert(nil)
	assert.True(t, errors.Is(err, annotation.ErrNilBatch))
	assert.True(t, errors.Is(err, annotation.ErrInvalidArgument))

	assert.NoError(t, c.BulkInsert([]annotation.Record{}))
}

func TestRemoveAt(t *testing.T) {
	c, events := newTestCollection(t)
	require.NoError(t, c.BulkInsert([]annotation.Record{
		annotation.NewAnnotation(1, 1, "a"),
		annotation.NewAnnotation(2, 2, "b"),
		annotation.NewAnnotation(3, 3, "c"),
	}))
	*events = nil

	require.NoError(t, c.RemoveAt(1))
	assert.Equal(t, []float64{1, 3}, times(c.Snapshot()))
	require.Len(t, *events, 1)
	assert.Equal(t, feedback.ChangeData{Kind: feedback.ChangeRemoved, From: 1, To: 2}, (*events)[0])

	require.NoError(t, c.RemoveAt(1))
	assert.Equal(t, feedback.ChangeData{Kind: feedback.ChangeRemoved, From: 1, To: 1}, (*events)[1])
}

func TestRemoveAtOutOfRange(t *testing.T) {
	c, _ := newTestCollection(t)
	c.Insert(annotation.NewAnnotation(1, 1, "a"))

	for _, row := range []int{-1, 1, 5} {
		err := c.RemoveAt(row)
		assert.True(t, errors.Is(err, annotation.ErrOutOfRange), "row %d", row)
	}
	assert.Equal(t, 1, c.Len())
}

func TestSnapshotIsIndependent(t *testing.T) {
	c, _ := newTestCollection(t)
	c.Insert(annotation.NewAnnotation(1, 1, "a"))

	snap := c.Snapshot()
	c.Insert(annotation.NewAnnotation(0, 2, "b"))
	snap[0].Text = "changed"

	assert.Len(t, snap, 1)
	r, err := c.At(1)
	require.NoError(t, err)
	assert.Equal(t, "a", r.Text)
}

func TestRowsAndIndexOf(t *testing.T) {
	c, _ := newTestCollection(t)
	require.NoError(t, c.BulkInsert([]annotation.Record{
		annotation.NewAnnotation(10, 1, "a"),
		annotation.NewAnnotation(20, 2, "b"),
		annotation.NewAnnotation(20, 3, "c"),
	}))

	rows := c.Rows(func(r annotation.Record) bool { return r.Time == 20 })
	assert.Equal(t, []int{1, 2}, rows)
	assert.Equal(t, 2, c.IndexOf(annotation.NewAnnotation(20, 3, "c")))
	assert.Equal(t, -1, c.IndexOf(annotation.NewAnnotation(20, 3, "x")))
}

func TestShiftIndices(t *testing.T) {
	c, _ := newTestCollection(t)
	require.NoError(t, c.BulkInsert([]annotation.Record{
		annotation.NewAnnotation(10, 1, "a"),
		annotation.NewAnnotation(20, 3, "c"),
		annotation.NewAnnotation(30, annotation.Unset, "x"),
		annotation.NewAnnotation(40, 5, "e"),
	}))

	n := c.ShiftIndices(3)
	assert.Equal(t, 2, n)

	var idx []int
	for _, r := range c.Snapshot() {
		idx = append(idx, r.Index)
	}
	assert.Equal(t, []int{1, 4, annotation.Unset, 6}, idx)
}

func TestClear(t *testing.T) {
	c, events := newTestCollection(t)
	c.Insert(annotation.NewAnnotation(1, 1, "a"))
	c.Clear()
	assert.Zero(t, c.Len())
	assert.Equal(t, feedback.ChangeCleared, (*events)[len(*events)-1].Kind)
}

func TestNilBus(t *testing.T) {
	c := New("s", annotation.KindSuggestion, nil)
	c.Insert(annotation.NewSuggestion(1, 0.5, "a"))
	assert.Equal(t, annotation.KindSuggestion, c.Kind())
	assert.Equal(t, 1, c.Len())
}

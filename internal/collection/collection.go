// Package collection keeps the records of the open audio file in time order.
package collection

import (
	"fmt"
	"slices"

	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
)

// Collection is a time-ordered list of records. It is owned by a single
// session and is not safe for concurrent use.
//
// Insert does not reject duplicates: callers that need one record per
// position delete the old record first. BulkInsert never de-duplicates.
type Collection struct {
	name   string
	kind   annotation.Kind
	bus    *feedback.EventBus
	sorted []annotation.Record
}

// New creates an empty collection. Change events are published on bus under
// name as the event source; bus may be nil.
func New(name string, kind annotation.Kind, bus *feedback.EventBus) *Collection {
	return &Collection{name: name, kind: kind, bus: bus}
}

// Name returns the event source name.
func (c *Collection) Name() string { return c.name }

// Kind returns the record layout of the collection.
func (c *Collection) Kind() annotation.Kind { return c.kind }

// Len returns the number of records.
func (c *Collection) Len() int { return len(c.sorted) }

// At returns the record at row i.
func (c *Collection) At(i int) (annotation.Record, error) {
	if i < 0 || i >= len(c.sorted) {
		return annotation.Record{}, fmt.Errorf("collection %s: row %d of %d: %w", c.name, i, len(c.sorted), annotation.ErrOutOfRange)
	}
	return c.sorted[i], nil
}

// Insert adds r and re-sorts.
func (c *Collection) Insert(r annotation.Record) {
	c.sorted = append(c.sorted, r)
	c.resort()
	c.publish(feedback.ChangeData{Kind: feedback.ChangeInserted, To: len(c.sorted), Full: true})
}

// BulkInsert adds every record of batch and re-sorts once. Duplicates,
// against the batch or existing rows, are kept.
func (c *Collection) BulkInsert(batch []annotation.Record) error {
	if batch == nil {
		return fmt.Errorf("collection %s: %w", c.name, annotation.ErrNilBatch)
	}
	c.sorted = append(c.sorted, batch...)
	c.resort()
	c.publish(feedback.ChangeData{Kind: feedback.ChangeInserted, To: len(c.sorted), Full: true})
	return nil
}

// RemoveAt deletes row i.
func (c *Collection) RemoveAt(i int) error {
	if i < 0 || i >= len(c.sorted) {
		return fmt.Errorf("collection %s: remove row %d of %d: %w", c.name, i, len(c.sorted), annotation.ErrOutOfRange)
	}
	c.sorted = slices.Delete(c.sorted, i, i+1)
	n := len(c.sorted)
	c.publish(feedback.ChangeData{Kind: feedback.ChangeRemoved, From: min(i, n), To: n})
	return nil
}

// Clear removes every record.
func (c *Collection) Clear() {
	c.sorted = nil
	c.publish(feedback.ChangeData{Kind: feedback.ChangeCleared, Full: true})
}

// Snapshot returns a copy of the records in time order. Later mutations do
// not affect it.
func (c *Collection) Snapshot() []annotation.Record {
	return slices.Clone(c.sorted)
}

// Rows returns the rows whose record satisfies match, in ascending order.
func (c *Collection) Rows(match func(annotation.Record) bool) []int {
	var rows []int
	for i, r := range c.sorted {
		if match(r) {
			rows = append(rows, i)
		}
	}
	return rows
}

// IndexOf returns the first row holding a record equal to r, or -1.
func (c *Collection) IndexOf(r annotation.Record) int {
	return slices.IndexFunc(c.sorted, func(x annotation.Record) bool {
		return annotation.Equal(x, r)
	})
}

// ShiftIndices increments the vocabulary index of every record whose index
// is at least from. It is used after a word is inserted into the wordpool
// and the ranks after it move down by one line.
func (c *Collection) ShiftIndices(from int) int {
	shifted := 0
	for i := range c.sorted {
		if c.sorted[i].Index >= from && c.sorted[i].Index != annotation.Unset {
			c.sorted[i].Index++
			shifted++
		}
	}
	if shifted > 0 {
		c.publish(feedback.ChangeData{Kind: feedback.ChangeInserted, To: len(c.sorted), Full: true})
	}
	return shifted
}

func (c *Collection) resort() {
	slices.SortStableFunc(c.sorted, annotation.CompareByTime)
}

func (c *Collection) publish(data feedback.ChangeData) {
	c.bus.PublishRecordsChanged(c.name, data)
}

package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishIsSynchronous(t *testing.T) {
	bus := NewEventBus()

	var got []ChangeData
	bus.Subscribe(EventRecordsChanged, func(e Event) {
		got = append(got, e.Data.(ChangeData))
	})

	bus.PublishRecordsChanged("annotations", ChangeData{Kind: ChangeInserted, Full: true, To: 1})
	bus.PublishRecordsChanged("annotations", ChangeData{Kind: ChangeRemoved, From: 0, To: 0})

	// No waiting: handlers have already run.
	require.Len(t, got, 2)
	assert.True(t, got[0].Full)
	assert.Equal(t, ChangeRemoved, got[1].Kind)
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewEventBus()

	var records, all int
	bus.Subscribe(EventRecordsChanged, func(Event) { records++ })
	bus.SubscribeAll(func(Event) { all++ })

	bus.PublishVocabularyChanged(ChangeData{Full: true})
	bus.PublishRecordsChanged("suggestions", ChangeData{Full: true})

	assert.Equal(t, 1, records)
	assert.Equal(t, 2, all)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	var first, second int
	unsub := bus.Subscribe(EventCommitCompleted, func(Event) { first++ })
	bus.Subscribe(EventCommitCompleted, func(Event) { second++ })
	unsubAll := bus.SubscribeAll(func(Event) { first += 100 })

	unsub()
	unsubAll()
	bus.PublishCommit("s1", CommitData{Text: "cat"})

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestPublishCommitFailure(t *testing.T) {
	bus := NewEventBus()

	var failed []Event
	bus.Subscribe(EventCommitFailed, func(e Event) { failed = append(failed, e) })

	bus.PublishCommit("s1", CommitData{Text: "cat", Err: assert.AnError})

	require.Len(t, failed, 1)
	assert.Equal(t, "s1", failed[0].SessionID)
	assert.False(t, failed[0].Timestamp.IsZero())
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := NewEventBus()

	var after int
	bus.SubscribeAll(func(Event) { panic("boom") })
	bus.SubscribeAll(func(Event) { after++ })

	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: EventSessionOpened})
	})
	assert.Equal(t, 1, after)

	m := bus.GetMetrics()
	assert.Equal(t, int64(1), m.HandlerPanics)
	assert.Equal(t, int64(1), m.EventsDelivered)
	assert.Equal(t, int64(1), m.EventsPublished[EventSessionOpened])
}

func TestHandlerMaySubscribeDuringDelivery(t *testing.T) {
	bus := NewEventBus()

	var late int
	bus.Subscribe(EventSessionOpened, func(Event) {
		bus.Subscribe(EventSessionClosed, func(Event) { late++ })
	})

	bus.Publish(Event{Type: EventSessionOpened})
	bus.Publish(Event{Type: EventSessionClosed})
	assert.Equal(t, 1, late)
}

func TestNilBusDropsEvents(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() {
		bus.PublishRecordsChanged("x", ChangeData{})
	})
}

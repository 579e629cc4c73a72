package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/workforce-engine/generic"
)

type collectingSink struct {
	mu     sync.Mutex
	events []generic.Event
}

func (s *collectingSink) Deliver(_ context.Context, e generic.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func event(subject string) generic.Event {
	return generic.Event{
		Type:       generic.EventTimesheetApproved,
		OccurredAt: time.Date(2025, 1, 13, 12, 0, 0, 0, time.UTC),
		SubjectID:  subject,
		Payload:    map[string]string{"worker_id": "w-1"},
	}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(zap.NewNop(), 16, sink)
	d.Start()

	for _, id := range []string{"ts-1", "ts-2", "ts-3"} {
		d.Notify(context.Background(), event(id))
	}
	d.Stop()

	require.Equal(t, 3, sink.count())
	assert.Equal(t, "ts-1", sink.events[0].SubjectID)
	assert.Equal(t, "ts-3", sink.events[2].SubjectID)
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	// GIVEN: A dispatcher with room for one event and no worker running
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &collectingSink{}
	d := NewDispatcher(zap.New(core), 1, sink)

	// WHEN: Two events are sent
	d.Notify(context.Background(), event("ts-1"))
	d.Notify(context.Background(), event("ts-2"))

	// THEN: The second one is dropped and logged, and Notify never blocked
	assert.Equal(t, int64(1), d.Dropped())
	dropped := logs.FilterMessage("event dropped").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, "queue full", dropped[0].ContextMap()["reason"])

	// AND: The queued one is delivered once the worker runs
	d.Start()
	d.Stop()
	assert.Equal(t, 1, sink.count())
}

func TestDispatcher_AfterStopDrops(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(nil, 4, sink)
	d.Start()
	d.Stop()
	d.Stop()

	d.Notify(context.Background(), event("late"))

	assert.Equal(t, int64(1), d.Dropped())
	assert.Zero(t, sink.count())
}

func TestDispatcher_SinkFailureDoesNotStopDelivery(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	good := &collectingSink{}
	failing := SinkFunc(func(context.Context, generic.Event) error { return errors.New("smtp down") })
	panicking := SinkFunc(func(context.Context, generic.Event) error { panic("boom") })

	d := NewDispatcher(zap.New(core), 8, failing, panicking, good)
	d.Start()
	d.Notify(context.Background(), event("ts-1"))
	d.Notify(context.Background(), event("ts-2"))
	d.Stop()

	assert.Equal(t, 2, good.count())
	assert.Len(t, logs.FilterMessage("event delivery failed").All(), 4)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Deliver(context.Background(), event("ts-9")))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "timesheet_approved", fields["type"])
	assert.Equal(t, "ts-9", fields["subject"])
	assert.Equal(t, "w-1", fields["worker_id"])
}

package history_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandalwing/si/internal/actor"
	"github.com/sandalwing/si/internal/history"
	"github.com/sandalwing/si/internal/sitest"
	"github.com/sandalwing/si/internal/tenancy"
	"github.com/sandalwing/si/internal/unitwork"
)

func record(t *testing.T, f *sitest.Fixture, label string, act actor.Actor, ten tenancy.Tenancy) {
	t.Helper()
	f.Run(t, func(w *unitwork.Work) error {
		_, err := history.Record(context.Background(), w, label, "msg", act, json.RawMessage(`{}`), ten)
		return err
	})
}

func collect(t *testing.T, f *sitest.Fixture, scope tenancy.Tenancy, filter history.Filter) []history.Event {
	t.Helper()
	var events []history.Event
	f.Read(t, func(w *unitwork.Work) {
		cur := history.List(f.DB, w.Tx(), scope, filter)
		for cur.Next(context.Background()) {
			events = append(events, cur.Event())
		}
		require.NoError(t, cur.Err())
	})
	return events
}

func TestRecordAndListOrdered(t *testing.T) {
	f := sitest.New(t)

	record(t, f, "schema.create", actor.System, tenancy.Universal())
	record(t, f, "schema.update", actor.User("alice"), tenancy.Universal())
	record(t, f, "schema.delete", actor.System, tenancy.Universal())

	events := collect(t, f, tenancy.Universal(), history.Filter{})
	require.Len(t, events, 3)
	assert.Equal(t, "schema.create", events[0].Label)
	assert.Equal(t, "schema.update", events[1].Label)
	assert.Equal(t, "schema.delete", events[2].Label)
	assert.True(t, events[0].Pk < events[1].Pk)
	assert.NotEmpty(t, events[0].ID)
}

func TestRecordUsesCoordinatorClock(t *testing.T) {
	f := sitest.New(t)

	record(t, f, "tick.one", actor.System, tenancy.Universal())
	record(t, f, "tick.two", actor.System, tenancy.Universal())
	record(t, f, "tick.three", actor.System, tenancy.Universal())

	// Each record draws exactly one instant from the fixture clock, so
	// timestamps are fully deterministic.
	events := collect(t, f, tenancy.Universal(), history.Filter{})
	require.Len(t, events, 3)
	for i, evt := range events {
		assert.True(t, evt.CreatedAt.Equal(sitest.Epoch.Add(time.Duration(i)*time.Millisecond)),
			"event %d at %v", i, evt.CreatedAt)
	}
}

func TestListLabelPrefixFilter(t *testing.T) {
	f := sitest.New(t)

	record(t, f, "change_set.create", actor.System, tenancy.Universal())
	record(t, f, "schema.create", actor.System, tenancy.Universal())
	record(t, f, "change_set.apply", actor.System, tenancy.Universal())

	events := collect(t, f, tenancy.Universal(), history.Filter{LabelPrefix: "change_set."})
	require.Len(t, events, 2)
	assert.Equal(t, "change_set.create", events[0].Label)
	assert.Equal(t, "change_set.apply", events[1].Label)
}

func TestListActorFilter(t *testing.T) {
	f := sitest.New(t)

	record(t, f, "schema.create", actor.User("alice"), tenancy.Universal())
	record(t, f, "schema.update", actor.User("bob"), tenancy.Universal())
	record(t, f, "schema.delete", actor.User("alice"), tenancy.Universal())

	alice := actor.User("alice")
	events := collect(t, f, tenancy.Universal(), history.Filter{Actor: &alice})
	require.Len(t, events, 2)
	assert.Equal(t, "schema.create", events[0].Label)
	assert.Equal(t, "schema.delete", events[1].Label)
}

func TestListTenancyScoping(t *testing.T) {
	f := sitest.New(t)

	record(t, f, "universal.event", actor.System, tenancy.Universal())
	record(t, f, "w1.event", actor.System, tenancy.ForWorkspace("w1"))
	record(t, f, "w2.event", actor.System, tenancy.ForWorkspace("w2"))

	// A workspace reads universal events plus its own.
	events := collect(t, f, tenancy.ForWorkspace("w1"), history.Filter{})
	require.Len(t, events, 2)
	assert.Equal(t, "universal.event", events[0].Label)
	assert.Equal(t, "w1.event", events[1].Label)

	// The universal scope reads only universal events.
	events = collect(t, f, tenancy.Universal(), history.Filter{})
	require.Len(t, events, 1)
	assert.Equal(t, "universal.event", events[0].Label)
}

func TestListPagesPastOneFetch(t *testing.T) {
	f := sitest.New(t)

	// More events than one page so the cursor must fetch repeatedly.
	f.Run(t, func(w *unitwork.Work) error {
		for i := 0; i < 300; i++ {
			if _, err := history.Record(context.Background(), w, "bulk.event", "msg",
				actor.System, json.RawMessage(`{}`), tenancy.Universal()); err != nil {
				return err
			}
		}
		return nil
	})

	events := collect(t, f, tenancy.Universal(), history.Filter{})
	require.Len(t, events, 300)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i-1].Pk < events[i].Pk)
	}
}

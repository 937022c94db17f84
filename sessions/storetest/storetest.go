// Package storetest holds the conformance suite shared by sessions.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-core-go/mcp"
	"github.com/ggoodman/mcp-core-go/sessions"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory creates a fresh Store for one subtest.
type Factory func(t *testing.T) sessions.Store

// Run runs the complete Store test suite against the provided factory.
func Run(t *testing.T, factory Factory) {
	t.Run("Records_CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("Records_CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory) })
	t.Run("Records_GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("Records_Update", func(t *testing.T) { testUpdate(t, factory) })
	t.Run("Records_UpdateMissing", func(t *testing.T) { testUpdateMissing(t, factory) })
	t.Run("Records_UpdateCallbackError", func(t *testing.T) { testUpdateCallbackError(t, factory) })
	t.Run("Records_ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, factory) })
	t.Run("Records_Delete", func(t *testing.T) { testDelete(t, factory) })

	t.Run("Events_AppendAndReplayFromStart", func(t *testing.T) { testEventsFromStart(t, factory) })
	t.Run("Events_ResumeAfterID", func(t *testing.T) { testEventsResume(t, factory) })
	t.Run("Events_IsolationBetweenSessions", func(t *testing.T) { testEventsIsolation(t, factory) })
	t.Run("Events_UnknownAfterID", func(t *testing.T) { testEventsUnknownAfter(t, factory) })
	t.Run("Events_DeletedWithSession", func(t *testing.T) { testEventsDeleted(t, factory) })
}

func newID() string { return "sess-" + uuid.NewString() }

func ctxFor(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func sampleRecord(id string) sessions.Record {
	return sessions.Record{
		ID:              id,
		Side:            mcp.SideServer,
		State:           mcp.StateInitializing,
		ProtocolVersion: mcp.ProtocolVersion,
		Peer:            &mcp.Implementation{Name: "client", Version: "0.1.0"},
		ClientCaps:      mcp.ClientCapabilities{Sampling: &mcp.SamplingCapability{}},
		ServerCaps: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{},
			Resources: &mcp.ResourcesCapability{Subscribe: true},
		},
	}
}

// --- Records ---

func testCreateAndGet(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := ctxFor(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })

	require.NoError(t, s.Create(ctx, sampleRecord(id)))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, mcp.SideServer, got.Side)
	assert.Equal(t, mcp.StateInitializing, got.State)
	assert.Equal(t, mcp.ProtocolVersion, got.ProtocolVersion)
	require.NotNil(t, got.Peer)
	assert.Equal(t, "client", got.Peer.Name)
	assert.True(t, got.ClientCaps.Has(mcp.CapabilitySampling))
	assert.True(t, got.ServerCaps.Has(mcp.CapabilityResourcesSubscribe))
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func testCreateDuplicate(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := ctxFor(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })

	require.NoError(t, s.Create(ctx, sampleRecord(id)))
	err := s.Create(ctx, sampleRecord(id))
	assert.ErrorIs(t, err, sessions.ErrExists)
}

func testGetMissing(t *testing.T, factory Factory) {
	s := factory(t)
	_, err := s.Get(ctxFor(t), newID())
	assert.ErrorIs(t, err, sessions.ErrNotFound)
}

func testUpdate(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := ctxFor(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })
	require.NoError(t, s.Create(ctx, sampleRecord(id)))

	err := s.Update(ctx, id, func(r *sessions.Record) error {
		r.State = mcp.StateReady
		r.LogLevel = mcp.LoggingLevelWarning
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, mcp.StateReady, got.State)
	assert.Equal(t, mcp.LoggingLevelWarning, got.LogLevel)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func testUpdateMissing(t *testing.T, factory Factory) {
	s := factory(t)
	called := false
	err := s.Update(ctxFor(t), newID(), func(*sessions.Record) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, sessions.ErrNotFound)
	assert.False(t, called)
}

func testUpdateCallbackError(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := ctxFor(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })
	require.NoError(t, s.Create(ctx, sampleRecord(id)))

	boom := errors.New("boom")
	err := s.Update(ctx, id, func(r *sessions.Record) error {
		r.State = mcp.StateClosed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, mcp.StateInitializing, got.State)
}

func testConcurrentUpdates(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := ctxFor(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })
	rec := sampleRecord(id)
	rec.ProtocolVersion = 0
	require.NoError(t, s.Create(ctx, rec))

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, id, func(r *sessions.Record) error {
				r.ProtocolVersion++
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, n, got.ProtocolVersion)
}

func testDelete(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := ctxFor(t)
	id := newID()
	require.NoError(t, s.Create(ctx, sampleRecord(id)))
	require.NoError(t, s.Delete(ctx, id))

	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	// Deleting twice is fine.
	assert.NoError(t, s.Delete(ctx, id))
}

// --- Events ---

func appendN(t *testing.T, s sessions.Store, sessionID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := range n {
		id, err := s.AppendEvent(ctxFor(t), sessionID, []byte(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}
	return ids
}

func testEventsFromStart(t *testing.T, factory Factory) {
	s := factory(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })

	ids := appendN(t, s, id, 3)

	evs, err := s.EventsAfter(ctxFor(t), id, "")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for i, ev := range evs {
		assert.Equal(t, ids[i], ev.ID)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(ev.Data))
	}
}

func testEventsResume(t *testing.T, factory Factory) {
	s := factory(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })

	ids := appendN(t, s, id, 4)

	evs, err := s.EventsAfter(ctxFor(t), id, ids[1])
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, ids[2], evs[0].ID)
	assert.Equal(t, ids[3], evs[1].ID)

	evs, err = s.EventsAfter(ctxFor(t), id, ids[3])
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func testEventsIsolation(t *testing.T, factory Factory) {
	s := factory(t)
	a, b := newID(), newID()
	t.Cleanup(func() {
		_ = s.Delete(context.Background(), a)
		_ = s.Delete(context.Background(), b)
	})

	appendN(t, s, a, 2)
	appendN(t, s, b, 1)

	evs, err := s.EventsAfter(ctxFor(t), a, "")
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	evs, err = s.EventsAfter(ctxFor(t), b, "")
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func testEventsUnknownAfter(t *testing.T, factory Factory) {
	s := factory(t)
	id := newID()
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })
	appendN(t, s, id, 1)

	evs, err := s.EventsAfter(ctxFor(t), id, "not-an-event-id")
	require.NoError(t, err)
	assert.Empty(t, evs)

	evs, err = s.EventsAfter(ctxFor(t), newID(), "")
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func testEventsDeleted(t *testing.T, factory Factory) {
	s := factory(t)
	id := newID()
	require.NoError(t, s.Create(ctxFor(t), sampleRecord(id)))
	appendN(t, s, id, 2)
	require.NoError(t, s.Delete(ctxFor(t), id))

	evs, err := s.EventsAfter(ctxFor(t), id, "")
	require.NoError(t, err)
	assert.Empty(t, evs)
}

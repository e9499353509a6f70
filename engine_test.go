package ecs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine()
	assert.True(t, e.ArchetypeMode(), "expected archetype mode by default")
	assert.NotNil(t, e.Entities())
	assert.NotNil(t, e.Components())
	assert.NotNil(t, e.Hierarchy())
	assert.NotNil(t, e.Queries())
	assert.NotNil(t, e.Scheduler())
}

func TestEngineWithArchetypeModeDisabled(t *testing.T) {
	e := NewEngine(WithArchetypeMode(false))
	assert.False(t, e.ArchetypeMode(), "expected legacy storage mode")
}

func TestEngineApplySpawnsAndReclaimsOnCleanup(t *testing.T) {
	e := NewEngine()
	buf := NewCommandBuffer()
	ref := buf.Spawn("hero").Ref()
	buf.Despawn(ref)

	result := e.Apply(buf)
	require.False(t, result.RolledBack, "errors=%v", result.Errors)
	require.Equal(t, 1, e.Entities().Count(), "expected spawn to register immediately")

	e.cleanup()
	assert.Equal(t, 0, e.Entities().Count(), "expected despawned entity reclaimed after cleanup")
}

func TestEngineTickAdvancesSchedulerAndCleansUpDeadEntities(t *testing.T) {
	e := NewEngine()
	reaper := NewSystem("reaper", func(ctx context.Context, exec ExecutionContext) SystemResult {
		ref := exec.Commands().Spawn("mortal").Ref()
		exec.Commands().Despawn(ref)
		return SystemResult{}
	})
	require.NoError(t, e.RegisterGroup(GroupConfig{Name: "lifecycle", Systems: []System{reaper}}))

	require.NoError(t, e.Tick(context.Background(), time.Millisecond))
	assert.Equal(t, 0, e.Entities().Count(), "expected the spawned-then-despawned entity reclaimed by end of tick")
}

func TestEngineResourcesRoundTrip(t *testing.T) {
	e := NewEngine()
	e.Resources().Set("clock", 42)
	v, ok := e.Resources().Get("clock")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	e.Resources().Delete("clock")
	_, ok = e.Resources().Get("clock")
	assert.False(t, ok, "expected resource removed after Delete")
}

func TestEngineCommandContextIsFreshPerCall(t *testing.T) {
	e := NewEngine()
	ctx1 := e.commandContext()
	ctx2 := e.commandContext()
	assert.NotSame(t, ctx1, ctx2, "expected commandContext to build a new context each call")
	assert.Empty(t, ctx1.placeholders, "expected empty placeholder map on a fresh context")
}

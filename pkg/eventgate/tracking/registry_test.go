package tracking_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
	"github.com/randalmurphal/eventgate/pkg/eventgate/tracking"
)

type order struct {
	aggregate.Root
	ID string
}

func dirty(id string) *order {
	o := &order{ID: id}
	o.RegisterEvent(event.NewAny("order.touched", "order", id))
	return o
}

func TestRegistry_Lifecycle(t *testing.T) {
	reg := tracking.NewRegistry()
	assert.Equal(t, tracking.StateInactive, reg.State())
	assert.Empty(t, reg.ScopeID())

	require.NoError(t, reg.Start())
	assert.True(t, reg.Active())
	assert.Equal(t, tracking.StateActive, reg.State())
	assert.NotEmpty(t, reg.ScopeID())

	a, b := dirty("a"), dirty("b")
	reg.Register(a)
	reg.Register(b)
	reg.Register(a)

	harvested := reg.HarvestAndStop()
	assert.Equal(t, []aggregate.Entity{a, b}, harvested)
	assert.False(t, reg.Active())
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.ScopeID())
}

func TestRegistry_RegisterRequiresPendingEvents(t *testing.T) {
	reg := tracking.NewRegistry()
	require.NoError(t, reg.Start())

	clean := &order{ID: "clean"}
	reg.Register(clean)
	reg.Register(nil)
	reg.Register((*order)(nil))

	assert.Empty(t, reg.HarvestAndStop())
}

func TestRegistry_RegisterWhileInactive(t *testing.T) {
	reg := tracking.NewRegistry()
	reg.Register(dirty("ignored"))
	reg.Include(dirty("ignored"))

	require.NoError(t, reg.Start())
	assert.Zero(t, reg.Len(), "nothing recorded before Start survives")
	reg.ForceCleanup()
}

func TestRegistry_Include(t *testing.T) {
	reg := tracking.NewRegistry()
	require.NoError(t, reg.Start())

	clean := &order{ID: "clean"}
	reg.Include(clean)
	assert.Equal(t, []aggregate.Entity{clean}, reg.HarvestAndStop())
}

func TestRegistry_HarvestWithoutStart(t *testing.T) {
	reg := tracking.NewRegistry()

	var harvested []aggregate.Entity
	assert.NotPanics(t, func() { harvested = reg.HarvestAndStop() })
	assert.NotNil(t, harvested)
	assert.Empty(t, harvested)
}

func TestRegistry_HarvestReturnsACopy(t *testing.T) {
	reg := tracking.NewRegistry()
	require.NoError(t, reg.Start())
	a := dirty("a")
	reg.Register(a)

	harvested := reg.HarvestAndStop()

	require.NoError(t, reg.Start())
	reg.Register(dirty("b"))
	assert.Equal(t, []aggregate.Entity{a}, harvested)
	reg.ForceCleanup()
}

func TestRegistry_ForceCleanup(t *testing.T) {
	reg := tracking.NewRegistry()
	require.NoError(t, reg.Start())
	reg.Register(dirty("z"))

	reg.ForceCleanup()
	assert.False(t, reg.Active())

	require.NoError(t, reg.Start())
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.HarvestAndStop())

	assert.NotPanics(t, reg.ForceCleanup, "cleanup of an inactive registry is a no-op")
}

func TestRegistry_NestedPolicy(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		reg := tracking.NewRegistry()
		require.NoError(t, reg.Start())
		a := dirty("a")
		reg.Register(a)

		err := reg.Start()
		require.ErrorIs(t, err, tracking.ErrScopeActive)

		// The original scope is untouched.
		assert.Equal(t, []aggregate.Entity{a}, reg.HarvestAndStop())
	})

	t.Run("reset", func(t *testing.T) {
		reg := tracking.NewRegistry(tracking.WithNestedPolicy(tracking.ResetNested))
		require.NoError(t, reg.Start())
		firstScope := reg.ScopeID()
		reg.Register(dirty("a"))

		require.NoError(t, reg.Start())
		assert.NotEqual(t, firstScope, reg.ScopeID())
		assert.Zero(t, reg.Len())
		reg.ForceCleanup()
	})
}

func TestParseNestedPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    tracking.NestedPolicy
		wantErr bool
	}{
		{"", tracking.RejectNested, false},
		{"reject", tracking.RejectNested, false},
		{"reset", tracking.ResetNested, false},
		{"merge", tracking.RejectNested, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := tracking.ParseNestedPolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, tracking.ErrUnknownPolicy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in == "reset", got.String() == "reset")
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, tracking.FromContext(ctx))
	assert.False(t, tracking.Active(ctx))
	assert.NotPanics(t, func() { tracking.Register(ctx, dirty("x")) })

	reg := tracking.NewRegistry()
	ctx = tracking.WithRegistry(ctx, reg)
	assert.Same(t, reg, tracking.FromContext(ctx))
	assert.False(t, tracking.Active(ctx))

	require.NoError(t, reg.Start())
	assert.True(t, tracking.Active(ctx))

	a, b := dirty("a"), dirty("b")
	tracking.Register(ctx, a, b, &order{})
	assert.Equal(t, 2, reg.Len())
	reg.ForceCleanup()
}

func TestRegistry_ConcurrentOperationsAreIsolated(t *testing.T) {
	const workers = 16
	var wg sync.WaitGroup
	results := make([][]aggregate.Entity, workers)
	owned := make([]*order, workers)

	for i := range workers {
		owned[i] = dirty("worker")
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := tracking.WithRegistry(context.Background(), tracking.NewRegistry())
			reg := tracking.FromContext(ctx)
			if err := reg.Start(); err != nil {
				t.Error(err)
				return
			}
			for range 10 {
				tracking.Register(ctx, owned[i])
			}
			results[i] = reg.HarvestAndStop()
		}()
	}
	wg.Wait()

	for i, got := range results {
		require.Len(t, got, 1)
		assert.Same(t, owned[i], got[0])
	}
}

func TestRegistry_SharedByChildGoroutines(t *testing.T) {
	reg := tracking.NewRegistry()
	ctx := tracking.WithRegistry(context.Background(), reg)
	require.NoError(t, reg.Start())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracking.Register(ctx, dirty("child"))
		}()
	}
	wg.Wait()

	assert.Len(t, reg.HarvestAndStop(), 8)
}

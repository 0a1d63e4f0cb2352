package scan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventgate/pkg/eventgate/aggregate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/event"
	"github.com/randalmurphal/eventgate/pkg/eventgate/scan"
)

type order struct {
	aggregate.Root
	ID    string
	Lines []*line
	Owner *customer
}

type line struct {
	aggregate.Root
	SKU string
}

type customer struct {
	aggregate.Root
	Name string
}

type cart struct {
	Orders   []*order
	ByID     map[string]*order
	Keyed    map[*customer]int
	Fixed    [2]*customer
	Any      any
	internal *order
	byValue  order
	Labels   []string
	Counts   map[string]int
	Callback func()
	Events   chan struct{}
}

type nodeA struct {
	B  *nodeB
	Me *order
}

type nodeB struct {
	A *nodeA
}

type chain struct {
	Next   *chain
	Entity *order
}

// buildChain returns a chain whose head is at depth 0 and whose holder at
// index holderAt carries an entity.
func buildChain(length, holderAt int) (*chain, *order) {
	e := &order{ID: "deep"}
	nodes := make([]*chain, length)
	for i := range nodes {
		nodes[i] = &chain{}
	}
	for i := 0; i < length-1; i++ {
		nodes[i].Next = nodes[i+1]
	}
	nodes[holderAt].Entity = e
	return nodes[0], e
}

func TestScan_Containers(t *testing.T) {
	o1 := &order{ID: "o1"}
	o2 := &order{ID: "o2"}
	o3 := &order{ID: "o3"}
	keyed := &customer{Name: "keyed"}
	fixed := &customer{Name: "fixed"}
	inAny := &order{ID: "in-any"}
	hidden := &order{ID: "hidden"}

	c := &cart{
		Orders:   []*order{o1, nil, o2},
		ByID:     map[string]*order{"o3": o3},
		Keyed:    map[*customer]int{keyed: 1},
		Fixed:    [2]*customer{fixed, nil},
		Any:      inAny,
		internal: hidden,
		Labels:   []string{"a"},
		Counts:   map[string]int{"a": 1},
		Callback: func() {},
		Events:   make(chan struct{}),
	}
	c.byValue.ID = "by-value"

	found := scan.New().Scan(c)

	for _, want := range []aggregate.Entity{o1, o2, o3, keyed, fixed, inAny, hidden, &c.byValue} {
		assert.True(t, found.Contains(want), "expected %T %+v to be found", want, want)
	}
	assert.Equal(t, 8, found.Len())
}

func TestScan_EntitiesAreBoundaries(t *testing.T) {
	owner := &customer{Name: "inner"}
	o := &order{ID: "outer", Lines: []*line{{SKU: "x"}}, Owner: owner}

	found := scan.Scan(o)

	require.Equal(t, 1, found.Len())
	assert.True(t, found.Contains(o))
	assert.False(t, found.Contains(owner))
}

func TestScan_Cycle(t *testing.T) {
	entity := &order{ID: "in-cycle"}
	a := &nodeA{Me: entity}
	b := &nodeB{A: a}
	a.B = b

	done := make(chan *aggregate.Set, 1)
	go func() { done <- scan.Scan(a, b, a) }()

	select {
	case found := <-done:
		assert.Equal(t, 1, found.Len())
		assert.True(t, found.Contains(entity))
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not terminate on a cyclic graph")
	}
}

func TestScan_SelfReferentialContainers(t *testing.T) {
	entity := &order{ID: "x"}
	m := map[string]any{"entity": entity}
	m["self"] = m
	s := []any{entity, nil}
	s[1] = s

	found := scan.Scan(m, s)
	assert.Equal(t, 1, found.Len())
}

func TestScan_DepthBudget(t *testing.T) {
	tests := []struct {
		name     string
		length   int
		holderAt int
		maxDepth int
		want     bool
	}{
		{"holder at budget is searched", 20, 10, 10, true},
		{"holder past budget is not searched", 20, 11, 10, false},
		{"entity near the end of a long chain", 20, 19, 10, false},
		{"shallow holder", 20, 0, 10, true},
		{"custom budget", 6, 3, 2, false},
		{"custom budget boundary", 6, 2, 2, true},
		{"zero budget still reads the root's fields", 6, 0, 0, true},
		{"zero budget stops after the root", 6, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, entity := buildChain(tt.length, tt.holderAt)
			found := scan.New(scan.WithMaxDepth(tt.maxDepth)).Scan(head)
			assert.Equal(t, tt.want, found.Contains(entity))
		})
	}
}

func TestScan_ExcludedPackages(t *testing.T) {
	type holder struct {
		Mu     sync.Mutex
		Ctx    context.Context
		When   time.Time
		Target *order
	}
	target := &order{ID: "t"}
	found := scan.Scan(&holder{Ctx: context.Background(), When: time.Now(), Target: target})
	assert.True(t, found.Contains(target))

	t.Run("custom exclusion hides the package", func(t *testing.T) {
		s := scan.New(scan.WithExcludedPackages("github.com/randalmurphal/eventgate/pkg/eventgate/scan_test"))
		found := s.Scan(&cart{Orders: []*order{target}})
		assert.Zero(t, found.Len())

		// Entities themselves are still recognised.
		assert.Equal(t, 1, s.Scan(target).Len())
	})

	t.Run("events are not entered", func(t *testing.T) {
		evt := event.NewAny("wrapped", "test", target)
		assert.Zero(t, scan.Scan(evt).Len())
	})
}

func TestScan_RootsOfEveryShape(t *testing.T) {
	o := &order{ID: "root"}
	assert.Equal(t, 1, scan.Scan(o).Len())
	assert.Equal(t, 1, scan.Scan([]*order{o}).Len())
	assert.Equal(t, 1, scan.Scan(map[string]aggregate.Entity{"o": o}).Len())
	assert.Equal(t, 1, scan.Scan(cart{Orders: []*order{o}}).Len())
	assert.Zero(t, scan.Scan(nil, 1, "text", []int{1, 2}, (*order)(nil)).Len())
}

func TestScan_Idempotent(t *testing.T) {
	o1, o2 := &order{ID: "1"}, &order{ID: "2"}
	c := &cart{Orders: []*order{o1}, ByID: map[string]*order{"2": o2}}

	s := scan.New()
	first := s.Scan(c)
	second := s.Scan(c)
	assert.ElementsMatch(t, first.Items(), second.Items())
}

func TestShallow(t *testing.T) {
	direct := &order{ID: "direct"}
	nested := &order{ID: "nested"}

	found := scan.Shallow(direct, []*order{nested}, &cart{Orders: []*order{nested}}, nil, direct)

	require.Equal(t, 1, found.Len())
	assert.True(t, found.Contains(direct))
}

func TestMightContain(t *testing.T) {
	s := scan.New()
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, false},
		{"int", 42, false},
		{"string", "x", false},
		{"entity", &order{}, true},
		{"slice of entities", []*order{}, true},
		{"slice of ints", []int{1}, false},
		{"map of scalars", map[string]int{}, false},
		{"map with entity values", map[string]*order{}, true},
		{"user struct", cart{}, true},
		{"excluded struct", time.Now(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.MightContain(tt.v))
		})
	}
}

func TestScan_EventsOnEntitiesDoNotMatter(t *testing.T) {
	clean := &order{ID: "clean"}
	dirty := &order{ID: "dirty"}
	dirty.RegisterEvent(event.NewAny("x", "order", nil))

	// The scanner reports reachability; filtering on pending events is the caller's job.
	assert.Equal(t, 2, scan.Scan(clean, dirty).Len())
}

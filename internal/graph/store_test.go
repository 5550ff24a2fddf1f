package graph

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrCreate_Idempotent(t *testing.T) {
	s := New()

	first, err := s.ResolveOrCreate("Jita")
	require.NoError(t, err)
	second, err := s.ResolveOrCreate("Jita")
	require.NoError(t, err)

	assert.Same(t, first, second)
	nodes, links := s.Len()
	assert.Equal(t, 1, nodes)
	assert.Equal(t, 0, links)
}

func TestResolveOrCreate_CaseSensitive(t *testing.T) {
	s := New()

	a, err := s.ResolveOrCreate("Jita")
	require.NoError(t, err)
	b, err := s.ResolveOrCreate("jita")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Len(t, s.Nodes(), 2)
}

func TestResolveOrCreate_EmptyName(t *testing.T) {
	s := New()

	n, err := s.ResolveOrCreate("")
	require.Error(t, err)
	assert.Nil(t, n)
	assert.True(t, errors.Is(err, ErrInvalidUpdate))
	assert.Empty(t, s.Nodes())
}

func TestResolveLink_CreatesUnannouncedEndpoints(t *testing.T) {
	s := New()

	l, err := s.ResolveLink("X", "Y")
	require.NoError(t, err)

	x, ok := s.Node("X")
	require.True(t, ok)
	y, ok := s.Node("Y")
	require.True(t, ok)
	assert.Same(t, x, l.Source)
	assert.Same(t, y, l.Target)
}

func TestResolveLink_ReusesAnnouncedNode(t *testing.T) {
	s := New()
	a, err := s.ResolveOrCreate("A")
	require.NoError(t, err)

	l, err := s.ResolveLink("A", "B")
	require.NoError(t, err)
	assert.Same(t, a, l.Source)
}

func TestResolveLink_EmptyEndpoint(t *testing.T) {
	testCases := []struct {
		name   string
		source string
		target string
	}{
		{name: "empty source", source: "", target: "B"},
		{name: "empty target", source: "A", target: ""},
		{name: "both empty", source: "", target: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()

			l, err := s.ResolveLink(tc.source, tc.target)
			require.Error(t, err)
			assert.Nil(t, l)
			assert.True(t, errors.Is(err, ErrUnresolvableLink))
			assert.True(t, errors.Is(err, ErrInvalidUpdate))

			// No endpoint is created for a half-valid link.
			assert.Empty(t, s.Nodes())
		})
	}
}

func TestAppendLink_KeepsDuplicatesInOrder(t *testing.T) {
	s := New()

	for i := 0; i < 2; i++ {
		l, err := s.ResolveLink("A", "B")
		require.NoError(t, err)
		require.NoError(t, s.AppendLink(l))
	}
	l, err := s.ResolveLink("B", "C")
	require.NoError(t, err)
	require.NoError(t, s.AppendLink(l))

	links := s.Links()
	require.Len(t, links, 3)
	assert.Equal(t, "A", links[0].Source.Name)
	assert.Equal(t, "A", links[1].Source.Name)
	assert.Equal(t, "B", links[2].Source.Name)
}

func TestAppendLink_RejectsForeignNodes(t *testing.T) {
	s := New()
	other := New()

	foreign, err := other.ResolveLink("A", "B")
	require.NoError(t, err)
	_, err = s.ResolveOrCreate("A")
	require.NoError(t, err)

	err = s.AppendLink(foreign)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvableLink))
	assert.Empty(t, s.Links())

	assert.Error(t, s.AppendLink(nil))
	assert.Error(t, s.AppendLink(&Link{}))
}

func TestSetCurrent_ToleratesUnknownSystem(t *testing.T) {
	s := New()

	s.SetCurrent("Z")

	assert.Equal(t, "Z", s.Current())
	_, ok := s.CurrentNode()
	assert.False(t, ok)
	assert.Empty(t, s.Nodes())
}

func TestNodes_InsertionOrder(t *testing.T) {
	s := New()
	for _, name := range []string{"C", "A", "B", "A"} {
		_, err := s.ResolveOrCreate(name)
		require.NoError(t, err)
	}

	var names []string
	for _, n := range s.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"C", "A", "B"}, names)
}

func TestReset_ClearsEverything(t *testing.T) {
	s := New()
	l, err := s.ResolveLink("Tama", "Kedama")
	require.NoError(t, err)
	require.NoError(t, s.AppendLink(l))
	s.SetCurrent("Kedama")

	s.Reset()

	assert.Empty(t, s.Nodes())
	assert.Empty(t, s.Links())
	assert.Equal(t, "", s.Current())
	_, ok := s.Node("Tama")
	assert.False(t, ok)
}

func TestReplace_MovesContents(t *testing.T) {
	s := New()
	_, err := s.ResolveOrCreate("Old")
	require.NoError(t, err)

	fresh := New()
	l, err := fresh.ResolveLink("A", "B")
	require.NoError(t, err)
	require.NoError(t, fresh.AppendLink(l))
	fresh.SetCurrent("B")

	s.Replace(fresh)

	_, ok := s.Node("Old")
	assert.False(t, ok)
	a, ok := s.Node("A")
	require.True(t, ok)
	assert.Same(t, a, s.Links()[0].Source)
	assert.Equal(t, "B", s.Current())

	// The donor is emptied.
	assert.Empty(t, fresh.Nodes())
	assert.Empty(t, fresh.Links())
	assert.Equal(t, "", fresh.Current())

	// Replacing with itself or nil is a no-op.
	s.Replace(s)
	s.Replace(nil)
	assert.Len(t, s.Nodes(), 2)
}

func TestNode_LayoutSurvivesResolve(t *testing.T) {
	s := New()
	n, err := s.ResolveOrCreate("Amarr")
	require.NoError(t, err)
	n.SetLayout(Layout{X: 10, Y: 20, Fixed: true})

	again, err := s.ResolveOrCreate("Amarr")
	require.NoError(t, err)
	assert.Equal(t, Layout{X: 10, Y: 20, Fixed: true}, again.Layout())
}

// TestStore_ConcurrentAccess verifies that readers can run alongside the
// single writer without races.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	numReaders := 20
	var wg sync.WaitGroup

	wg.Add(numReaders + 1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			l, err := s.ResolveLink(fmt.Sprintf("sys-%d", i), fmt.Sprintf("sys-%d", i+1))
			if err != nil {
				t.Errorf("resolve link: %v", err)
				return
			}
			if err := s.AppendLink(l); err != nil {
				t.Errorf("append link: %v", err)
				return
			}
			s.SetCurrent(fmt.Sprintf("sys-%d", i+1))
		}
	}()
	for r := 0; r < numReaders; r++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				for _, l := range s.Links() {
					assert.NotNil(t, l.Source)
					assert.NotNil(t, l.Target)
				}
				_ = s.Current()
			}
		}()
	}
	wg.Wait()

	nodes, links := s.Len()
	assert.Equal(t, 201, nodes)
	assert.Equal(t, 200, links)
}

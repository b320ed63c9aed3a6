package template

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func set[K comparable](keys ...K) map[K]struct{} {
	out := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func fixtureEdges() Edges[string] {
	e := make(Edges[string])
	e.Add("bootstrap", "html", "js", "css")
	e.Add("jquery", "html", "js", "css")
	e.Add("reactjs", "js")
	e.Add("jqueryui", "jquery")
	e.Add("bootstrap react gallery", "reactjs", "bootstrap")
	e.Add("monolithic app", "html", "js", "css", "bootstrap", "jquery", "reactjs", "jqueryui", "bootstrap react gallery")
	return e
}

func TestClosure_Leaf(t *testing.T) {
	got, err := Closure(context.Background(), "html", fixtureEdges().Expand)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClosure_Diamond(t *testing.T) {
	e := make(Edges[string])
	e.Add("A", "B", "C")
	e.Add("B", "D")
	e.Add("C", "D")

	got, err := Closure(context.Background(), "A", e.Expand)
	require.NoError(t, err)
	assert.Equal(t, set("B", "C", "D"), got)
}

func TestClosure_Fixture(t *testing.T) {
	got, err := Closure(context.Background(), "monolithic app", fixtureEdges().Expand)
	require.NoError(t, err)
	assert.Len(t, got, 8)
	assert.Equal(t, set("html", "js", "css", "reactjs", "jquery", "jqueryui", "bootstrap", "bootstrap react gallery"), got)

	got, err = Closure(context.Background(), "bootstrap react gallery", fixtureEdges().Expand)
	require.NoError(t, err)
	assert.Equal(t, set("reactjs", "bootstrap", "html", "js", "css"), got)
}

func TestClosure_CycleTerminates(t *testing.T) {
	e := make(Edges[string])
	e.Add("a", "b")
	e.Add("b", "c")
	e.Add("c", "a")

	got, err := Closure(context.Background(), "a", e.Expand)
	require.NoError(t, err)
	// 环回到起点时起点也在结果中
	assert.Equal(t, set("a", "b", "c"), got)

	e.Add("x", "x")
	got, err = Closure(context.Background(), "x", e.Expand)
	require.NoError(t, err)
	assert.Equal(t, set("x"), got)
}

func TestClosure_ExpandOnlyNewNodes(t *testing.T) {
	e := make(Edges[int])
	e.Add(1, 2, 3)
	e.Add(2, 4)
	e.Add(3, 4)
	e.Add(4, 5)

	var frontiers [][]int
	expand := func(ctx context.Context, frontier []int) ([]int, error) {
		frontiers = append(frontiers, slices.Clone(frontier))
		return e.Expand(ctx, frontier)
	}
	_, err := Closure(context.Background(), 1, expand)
	require.NoError(t, err)

	seen := make(map[int]int)
	for _, f := range frontiers {
		for _, k := range f {
			seen[k]++
		}
	}
	for k, n := range seen {
		assert.Equal(t, 1, n, "node %d expanded more than once", k)
	}
}

func TestClosure_Errors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Closure(context.Background(), 1, func(context.Context, []int) ([]int, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Closure(ctx, "monolithic app", fixtureEdges().Expand)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindCycle(t *testing.T) {
	assert.Nil(t, FindCycle(fixtureEdges()))

	e := fixtureEdges()
	e.Add("js", "jqueryui")
	cycle := FindCycle(e)
	require.NotEmpty(t, cycle)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	for i := 0; i+1 < len(cycle); i++ {
		assert.Contains(t, e[cycle[i]], cycle[i+1])
	}

	self := make(Edges[string])
	self.Add("a", "a")
	assert.Equal(t, []string{"a", "a"}, FindCycle(self))
}

func TestTopoOrder(t *testing.T) {
	e := fixtureEdges()
	nodes := slices.Sorted(maps.Keys(e.Nodes()))
	order := TopoOrder(nodes, e)
	require.Len(t, order, len(nodes))

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	for from, tos := range e {
		for _, to := range tos {
			assert.Less(t, pos[to], pos[from], "%s must come before %s", to, from)
		}
	}
	assert.Equal(t, []string{"css", "html", "js"}, order[:3])
}

func TestTopoOrder_CycleMembersLast(t *testing.T) {
	e := make(Edges[string])
	e.Add("b", "a")
	e.Add("c", "d")
	e.Add("d", "c")
	order := TopoOrder([]string{"d", "c", "b", "a"}, e)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

// 随机图上的闭包性质
func TestProperty_ClosureInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "nodes")
		m := rapid.IntRange(0, 30).Draw(rt, "edges")
		pairs := make([][2]int, m)
		for i := range pairs {
			pairs[i] = [2]int{
				rapid.IntRange(0, n-1).Draw(rt, fmt.Sprintf("from%d", i)),
				rapid.IntRange(0, n-1).Draw(rt, fmt.Sprintf("to%d", i)),
			}
		}
		shuffled := rapid.Permutation(pairs).Draw(rt, "order")

		build := func(ps [][2]int) Edges[int] {
			e := make(Edges[int])
			for _, p := range ps {
				e.Add(p[0], p[1])
			}
			return e
		}
		a, b := build(pairs), build(shuffled)
		ctx := context.Background()

		for r := 0; r < n; r++ {
			got, err := Closure(ctx, r, a.Expand)
			if err != nil {
				rt.Fatalf("closure: %v", err)
			}
			other, _ := Closure(ctx, r, b.Expand)
			if !maps.Equal(got, other) {
				rt.Fatalf("closure of %d depends on insertion order: %v vs %v", r, got, other)
			}
			if len(a[r]) == 0 && len(got) != 0 {
				rt.Fatalf("leaf %d has non-empty closure %v", r, got)
			}
			// 传递性：直接依赖及其闭包都在结果中
			for _, s := range a[r] {
				if _, ok := got[s]; !ok {
					rt.Fatalf("direct dependency %d missing from closure of %d", s, r)
				}
				sub, _ := Closure(ctx, s, a.Expand)
				for k := range sub {
					if _, ok := got[k]; !ok {
						rt.Fatalf("%d reachable via %d missing from closure of %d", k, s, r)
					}
				}
			}
		}
	})
}

package template

import (
	"cmp"
	"context"
	"slices"
)

// Expander 返回 frontier 中所有节点的直接依赖（可含重复）
type Expander[K comparable] func(ctx context.Context, frontier []K) ([]K, error)

// Closure 计算 start 的传递依赖闭包。
// 每轮只展开上一轮新发现的节点，一轮没有新节点即停止，有环时同样终止。
// 结果不包含 start，除非有环回到 start。
func Closure[K comparable](ctx context.Context, start K, expand Expander[K]) (map[K]struct{}, error) {
	result := make(map[K]struct{})
	frontier := []K{start}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := expand(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var fresh []K
		for _, k := range next {
			if _, seen := result[k]; seen {
				continue
			}
			result[k] = struct{}{}
			fresh = append(fresh, k)
		}
		frontier = fresh
	}
	return result, nil
}

// Edges 内存邻接表：from → 直接依赖
type Edges[K comparable] map[K][]K

// Add 添加 from → to 的边，重复边忽略
func (e Edges[K]) Add(from K, to ...K) {
	for _, t := range to {
		if !slices.Contains(e[from], t) {
			e[from] = append(e[from], t)
		}
	}
}

// Expand 实现 Expander
func (e Edges[K]) Expand(_ context.Context, frontier []K) ([]K, error) {
	var out []K
	for _, k := range frontier {
		out = append(out, e[k]...)
	}
	return out, nil
}

// Nodes 返回出现在任意边上的节点
func (e Edges[K]) Nodes() map[K]struct{} {
	nodes := make(map[K]struct{}, len(e))
	for from, tos := range e {
		nodes[from] = struct{}{}
		for _, t := range tos {
			nodes[t] = struct{}{}
		}
	}
	return nodes
}

// FindCycle 以 DFS 着色查找环，返回首尾相同的路径；无环返回 nil。
// 节点与邻居按键排序访问，结果确定。
func FindCycle[K cmp.Ordered](edges Edges[K]) []K {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[K]int)
	var path []K
	var cycle []K

	var visit func(k K) bool
	visit = func(k K) bool {
		colour[k] = grey
		path = append(path, k)
		for _, next := range sortedCopy(edges[k]) {
			switch colour[next] {
			case grey:
				start := slices.Index(path, next)
				cycle = append(slices.Clone(path[start:]), next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		colour[k] = black
		return false
	}

	for _, k := range sortedKeys(edges.Nodes()) {
		if colour[k] == white && visit(k) {
			return cycle
		}
	}
	return nil
}

// TopoOrder 将 nodes 排成依赖优先的顺序，同层按键排序。
// 只考虑 nodes 之间的边；环上的节点按键顺序追加在末尾。
func TopoOrder[K cmp.Ordered](nodes []K, edges Edges[K]) []K {
	set := make(map[K]struct{}, len(nodes))
	for _, n := range nodes {
		set[n] = struct{}{}
	}

	// pending[n] = n 尚未输出的依赖数；dependents[d] = 依赖 d 的节点
	pending := make(map[K]int, len(set))
	dependents := make(map[K][]K, len(set))
	for n := range set {
		count := 0
		for _, d := range edges[n] {
			if _, ok := set[d]; !ok || d == n {
				continue
			}
			count++
			dependents[d] = append(dependents[d], n)
		}
		pending[n] = count
	}

	var ready []K
	for n, c := range pending {
		if c == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]K, 0, len(set))
	emitted := make(map[K]struct{}, len(set))
	for len(ready) > 0 {
		slices.Sort(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		emitted[n] = struct{}{}
		for _, m := range dependents[n] {
			pending[m]--
			if pending[m] == 0 {
				ready = append(ready, m)
			}
		}
	}

	var rest []K
	for n := range set {
		if _, ok := emitted[n]; !ok {
			rest = append(rest, n)
		}
	}
	slices.Sort(rest)
	return append(order, rest...)
}

func sortedKeys[K cmp.Ordered](m map[K]struct{}) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedCopy[K cmp.Ordered](in []K) []K {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

package solver

import (
	"fmt"
	"math"

	"github.com/kilianp07/crowdsense/core/flow"
	"github.com/kilianp07/crowdsense/core/logger"
)

// MinCostFlow is a successive shortest path solver working on the residual
// graph. Lower bounds are removed by shifting supplies, and shortest paths
// are found with a queue based Bellman-Ford so negative residual costs are
// handled.
type MinCostFlow struct {
	log logger.Logger
}

// NewMinCostFlow returns a MinCostFlow solver. A nil logger discards output.
func NewMinCostFlow(log logger.Logger) *MinCostFlow {
	return &MinCostFlow{log: logger.OrNop(log)}
}

type residualGraph struct {
	head []int
	next []int
	to   []int
	cap  []float64
	cost []float64
}

func newResidualGraph(nodes, edges int) *residualGraph {
	g := &residualGraph{head: make([]int, nodes)}
	for i := range g.head {
		g.head[i] = -1
	}
	g.next = make([]int, 0, 2*edges)
	g.to = make([]int, 0, 2*edges)
	g.cap = make([]float64, 0, 2*edges)
	g.cost = make([]float64, 0, 2*edges)
	return g
}

// add inserts an edge and its reverse; the forward edge index is returned
// and its reverse is index^1.
func (g *residualGraph) add(u, v int, capacity, cost float64) int {
	id := len(g.to)
	g.to = append(g.to, v, u)
	g.cap = append(g.cap, capacity, 0)
	g.cost = append(g.cost, cost, -cost)
	g.next = append(g.next, g.head[u], g.head[v])
	g.head[u] = id
	g.head[v] = id + 1
	return id
}

// shortestPath returns the predecessor edge per node, or an error on a
// negative cycle.
func (g *residualGraph) shortestPath(src int) ([]float64, []int, error) {
	n := len(g.head)
	dist := make([]float64, n)
	prev := make([]int, n)
	inQueue := make([]bool, n)
	visits := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0
	queue := []int{src}
	inQueue[src] = true
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		inQueue[u] = false
		for e := g.head[u]; e != -1; e = g.next[e] {
			if g.cap[e] <= flowEpsilon {
				continue
			}
			v := g.to[e]
			if d := dist[u] + g.cost[e]; d < dist[v]-flowEpsilon {
				dist[v] = d
				prev[v] = e
				if !inQueue[v] {
					visits[v]++
					if visits[v] > n {
						return nil, nil, fmt.Errorf("negative cost cycle through node %d", v)
					}
					inQueue[v] = true
					queue = append(queue, v)
				}
			}
		}
	}
	return dist, prev, nil
}

// Solve implements Solver.
func (s *MinCostFlow) Solve(net *flow.Network) (Solution, error) {
	if err := validate(net); err != nil {
		return failed(err)
	}
	excess := append([]float64(nil), net.Supply...)
	src, dst := net.NodeCount, net.NodeCount+1
	g := newResidualGraph(net.NodeCount+2, len(net.Arcs)+net.NodeCount)
	ids := make([]int, len(net.Arcs))
	for i, a := range net.Arcs {
		excess[a.Tail] -= a.Lower
		excess[a.Head] += a.Lower
		ids[i] = g.add(a.Tail, a.Head, a.Upper-a.Lower, a.Cost)
	}
	var need float64
	for v, b := range excess {
		switch {
		case b > flowEpsilon:
			g.add(src, v, b, 0)
			need += b
		case b < -flowEpsilon:
			g.add(v, dst, -b, 0)
		}
	}

	var sent float64
	augmentations := 0
	for sent < need-flowEpsilon {
		dist, prev, err := g.shortestPath(src)
		if err != nil {
			return failed(err)
		}
		if math.IsInf(dist[dst], 1) {
			break
		}
		push := need - sent
		for v := dst; v != src; v = g.to[prev[v]^1] {
			push = math.Min(push, g.cap[prev[v]])
		}
		for v := dst; v != src; v = g.to[prev[v]^1] {
			e := prev[v]
			g.cap[e] -= push
			g.cap[e^1] += push
		}
		sent += push
		augmentations++
	}
	s.log.Debugw("min cost flow finished", map[string]any{
		"augmentations": augmentations,
		"sent":          sent,
		"required":      need,
	})
	if sent < need-1e-7 {
		return Solution{Status: StatusInfeasible}, nil
	}

	sol := Solution{Status: StatusOptimal, Flow: make([]float64, len(net.Arcs))}
	for i, a := range net.Arcs {
		sol.Flow[i] = clamp(a.Lower+g.cap[ids[i]^1], a)
	}
	sol.Objective = net.Cost(sol.Flow)
	return sol, nil
}

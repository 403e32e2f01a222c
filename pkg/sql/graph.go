package sql

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// joinGraph is an undirected graph of the model's tables with one edge per
// resolved join.
type joinGraph struct {
	tables []string         // display names, in model order
	index  map[string]int   // lower-case name -> position in tables
	edges  map[string][]int // lower-case name -> indices into joins
	joins  []models.Join
}

func newJoinGraph(tables []string, joins []models.Join) *joinGraph {
	g := &joinGraph{
		tables: tables,
		index:  make(map[string]int, len(tables)),
		edges:  make(map[string][]int),
	}
	for i, t := range tables {
		g.index[strings.ToLower(t)] = i
	}
	for _, j := range joins {
		l, r := strings.ToLower(j.LeftTable), strings.ToLower(j.RightTable)
		_, okL := g.index[l]
		_, okR := g.index[r]
		if !okL || !okR || l == r {
			continue
		}
		g.edges[l] = append(g.edges[l], len(g.joins))
		g.edges[r] = append(g.edges[r], len(g.joins))
		g.joins = append(g.joins, j)
	}
	return g
}

func (g *joinGraph) other(j models.Join, table string) string {
	if strings.EqualFold(j.LeftTable, table) {
		return j.RightTable
	}
	return j.LeftTable
}

// components returns the connected components, each listed in model order,
// ordered by their first table.
func (g *joinGraph) components() [][]string {
	visited := make(map[string]bool, len(g.tables))
	var out [][]string
	for _, start := range g.tables {
		if visited[strings.ToLower(start)] {
			continue
		}
		var component []string
		stack := []string{start}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			key := strings.ToLower(current)
			if visited[key] {
				continue
			}
			visited[key] = true
			component = append(component, g.tables[g.index[key]])
			for _, ji := range g.edges[key] {
				if next := g.other(g.joins[ji], current); !visited[strings.ToLower(next)] {
					stack = append(stack, next)
				}
			}
		}
		slices.SortFunc(component, func(a, b string) int {
			return cmp.Compare(g.index[strings.ToLower(a)], g.index[strings.ToLower(b)])
		})
		out = append(out, component)
	}
	return out
}

// joinStep adds table to the FROM clause through join.
type joinStep struct {
	table string
	join  models.Join
}

// spanningJoins grows a tree from the first table, always taking the
// highest-weight join that reaches a new table (earlier joins win ties).
// It assumes the graph is connected.
func (g *joinGraph) spanningJoins() []joinStep {
	if len(g.tables) == 0 {
		return nil
	}
	ranked := make([]int, len(g.joins))
	for i := range ranked {
		ranked[i] = i
	}
	slices.SortStableFunc(ranked, func(a, b int) int {
		return cmp.Compare(g.joins[b].Weight, g.joins[a].Weight)
	})

	reached := map[string]bool{strings.ToLower(g.tables[0]): true}
	var steps []joinStep
	for len(reached) < len(g.tables) {
		progressed := false
		for _, ji := range ranked {
			j := g.joins[ji]
			l, r := reached[strings.ToLower(j.LeftTable)], reached[strings.ToLower(j.RightTable)]
			if l == r {
				continue
			}
			next := j.RightTable
			if r {
				next = j.LeftTable
			}
			reached[strings.ToLower(next)] = true
			steps = append(steps, joinStep{table: g.tables[g.index[strings.ToLower(next)]], join: j})
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	return steps
}

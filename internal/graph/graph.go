package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// Edge — направленное ребро From → To.
type Edge struct {
	From uuid.UUID
	To   uuid.UUID
}

// Graph — направленный граф узлов workflow.
//
// Узлы хранятся в порядке добавления, чтобы результаты обхода были
// детерминированными.
type Graph struct {
	nodes []uuid.UUID
	known map[uuid.UUID]bool

	// out — исходящие рёбра (узел → зависимые).
	out map[uuid.UUID][]uuid.UUID

	// in — входящие рёбра (узел → предшественники).
	in map[uuid.UUID][]uuid.UUID
}

// New строит граф из узлов и рёбер.
// Возвращает ErrUnknownNode, если ребро ссылается на узел вне списка.
func New(nodes []uuid.UUID, edges []Edge) (*Graph, error) {
	g := &Graph{
		known: make(map[uuid.UUID]bool, len(nodes)),
		out:   make(map[uuid.UUID][]uuid.UUID),
		in:    make(map[uuid.UUID][]uuid.UUID),
	}
	for _, id := range nodes {
		g.AddNode(id)
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// FromEdges строит граф, узлами которого являются концы рёбер.
func FromEdges(edges []Edge) *Graph {
	g := &Graph{
		known: make(map[uuid.UUID]bool),
		out:   make(map[uuid.UUID][]uuid.UUID),
		in:    make(map[uuid.UUID][]uuid.UUID),
	}
	for _, e := range edges {
		g.AddNode(e.From)
		g.AddNode(e.To)
		g.link(e.From, e.To)
	}
	return g
}

// AddNode добавляет узел (повторное добавление игнорируется).
func (g *Graph) AddNode(id uuid.UUID) {
	if g.known[id] {
		return
	}
	g.known[id] = true
	g.nodes = append(g.nodes, id)
}

// AddEdge добавляет ребро между существующими узлами.
// Дубликаты игнорируются, чтобы не учитывать степень дважды.
func (g *Graph) AddEdge(e Edge) error {
	if !g.known[e.From] {
		return fmt.Errorf("%w: %s", ErrUnknownNode, e.From)
	}
	if !g.known[e.To] {
		return fmt.Errorf("%w: %s", ErrUnknownNode, e.To)
	}
	g.link(e.From, e.To)
	return nil
}

func (g *Graph) link(from, to uuid.UUID) {
	for _, dep := range g.in[to] {
		if dep == from {
			return // уже связаны
		}
	}
	g.out[from] = append(g.out[from], to)
	g.in[to] = append(g.in[to], from)
}

// Nodes возвращает узлы в порядке добавления.
func (g *Graph) Nodes() []uuid.UUID {
	return append([]uuid.UUID(nil), g.nodes...)
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Roots возвращает узлы без входящих рёбер.
func (g *Graph) Roots() []uuid.UUID {
	roots := make([]uuid.UUID, 0)
	for _, id := range g.nodes {
		if len(g.in[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// IsRoot проверяет, что у узла нет предшественников.
func (g *Graph) IsRoot(id uuid.UUID) bool {
	return len(g.in[id]) == 0
}

// Predecessors возвращает прямых предшественников узла.
func (g *Graph) Predecessors(id uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID(nil), g.in[id]...)
}

// Successors возвращает прямых потомков узла.
func (g *Graph) Successors(id uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID(nil), g.out[id]...)
}

// Descendants возвращает всех транзитивных потомков узла в порядке обхода в ширину.
func (g *Graph) Descendants(id uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{id: true}
	queue := append([]uuid.UUID(nil), g.out[id]...)
	result := make([]uuid.UUID, 0)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if seen[node] {
			continue
		}
		seen[node] = true
		result = append(result, node)
		queue = append(queue, g.out[node]...)
	}
	return result
}

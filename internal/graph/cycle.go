package graph

import "github.com/google/uuid"

// TopologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ErrCyclicDependency, если в графе есть цикл.
func (g *Graph) TopologicalSort() ([]uuid.UUID, error) {
	// Копируем степени, чтобы не модифицировать граф
	inDegree := make(map[uuid.UUID]int, len(g.nodes))
	for _, id := range g.nodes {
		inDegree[id] = len(g.in[id])
	}

	queue := g.Roots()
	order := make([]uuid.UUID, 0, len(g.nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range g.out[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g.nodes) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}

// HasCycle проверяет граф на наличие цикла.
func (g *Graph) HasCycle() bool {
	_, err := g.TopologicalSort()
	return err != nil
}

// WouldCreateCycle проверяет, появится ли цикл после добавления proposed
// к множеству рёбер edges. Петля (From == To) всегда считается циклом.
func WouldCreateCycle(edges []Edge, proposed Edge) bool {
	if proposed.From == proposed.To {
		return true
	}
	g := FromEdges(edges)
	g.AddNode(proposed.From)
	g.AddNode(proposed.To)
	g.link(proposed.From, proposed.To)
	return g.HasCycle()
}

// CheckEdge возвращает ошибку, если ребро недопустимо для графа edges.
func CheckEdge(edges []Edge, proposed Edge) error {
	if proposed.From == proposed.To {
		return ErrSelfDependency
	}
	if WouldCreateCycle(edges, proposed) {
		return ErrCyclicDependency
	}
	return nil
}

// Roots возвращает корневые узлы графа nodes/edges.
func Roots(nodes []uuid.UUID, edges []Edge) ([]uuid.UUID, error) {
	g, err := New(nodes, edges)
	if err != nil {
		return nil, err
	}
	return g.Roots(), nil
}

// TopologicalOrder возвращает узлы в порядке выполнения.
func TopologicalOrder(nodes []uuid.UUID, edges []Edge) ([]uuid.UUID, error) {
	g, err := New(nodes, edges)
	if err != nil {
		return nil, err
	}
	return g.TopologicalSort()
}

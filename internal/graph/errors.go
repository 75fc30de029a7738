package graph

import "errors"

// Ошибки графа.
var (
	// ErrCyclicDependency — ребро замыкает цикл.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — узел зависит от самого себя.
	ErrSelfDependency = errors.New("node depends on itself")

	// ErrUnknownNode — ребро ссылается на отсутствующий узел.
	ErrUnknownNode = errors.New("edge references unknown node")
)

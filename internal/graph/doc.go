// Package graph содержит чистые операции над графом зависимостей workflow.
//
// Включает:
//   - graph.go  — построение графа из плоского списка рёбер, корни, предки/потомки
//   - cycle.go  — топологическая сортировка (алгоритм Кана) и проверка циклов
//
// Пакет не знает о хранилище: узлы и рёбра передаются как идентификаторы,
// поэтому проверка может выполняться внутри любой транзакции.
package graph

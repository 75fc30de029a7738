// Package catalog управляет pipelines и графами workflows.
//
// Все изменения графа выполняются в одной транзакции с блокировкой
// строки workflow: проверка на цикл и вставка ребра не разделены
// другим изменением того же графа.
package catalog

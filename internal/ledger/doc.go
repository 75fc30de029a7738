// Package ledger ведёт журнал состояний pipeline runs.
//
// Журнал только дополняется: текущее состояние run — последняя запись.
// Каждое добавление проверяется таблицей переходов domain.IsValidTransition
// и выполняется внутри транзакции вызывающего (repo.Tx), вместе с побочными
// эффектами перехода.
//
// Консольный вывод хранится как последовательность порций и склеивается
// при чтении.
package ledger

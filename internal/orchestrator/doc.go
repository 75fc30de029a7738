// Package orchestrator управляет жизненным циклом pipeline runs.
//
// Orchestrator отвечает за:
//   - Создание runs напрямую и для всех узлов workflow
//   - Переходы состояний через журнал (ledger) с проверкой state machine
//   - Распространение артефактов завершённого run на зависимые runs
//   - Освобождение зависимого run, когда все его предшественники COMPLETED
//   - Каскадную отмену потомков упавшего или отменённого run
//   - Публикацию готовых runs в очередь и уведомления callback после коммита
//   - Переотправку зависших NOT_STARTED runs (Reconciler)
//
// Все изменения, вызванные переходом, выполняются в той же транзакции,
// что и сам переход. Побочные эффекты вне БД (очередь, callbacks, метрики)
// выполняются только после успешного коммита.
package orchestrator
